// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/calibrate/config"
	"github.com/gorse-io/calibrate/dataset"
	"github.com/gorse-io/calibrate/storage"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Recommend: config.RecommendConfig{
			Parallel:         false,
			EvaluationK:      5,
			EvaluationMetric: "ndcg",
			TrainSize:        0.7,
			ValidationSize:   0.2,
		},
		Datasets: map[string]config.DatasetConfig{
			"toy": {
				GroundTruthModel: "mf",
				GroundTruthPath:  filepath.Join(dir, "ground_truth", "mf.gob"),
				GroundTruthGrid: map[string][]interface{}{
					"factors":  {2},
					"n_epochs": {5},
				},
				RecommenderModel: "mf",
				RecommenderPath:  filepath.Join(dir, "recommender"),
				RecommenderGrid: map[string][]interface{}{
					"factors":  {2, 3},
					"lr":       {0.01, 0.05},
					"n_epochs": {5},
				},
			},
		},
	}
}

func testData() *dataset.Matrix {
	m := dataset.NewMatrix(8, 8)
	for u := int32(0); u < 8; u++ {
		for i := int32(0); i < 8; i++ {
			if (u < 4) == (i < 4) {
				m.Add(u, i, 5)
			}
		}
	}
	return m
}

func TestGenerateGroundTruth(t *testing.T) {
	conf := testConfig(t)
	p := New(conf, 42)
	groundTruth, err := p.GenerateGroundTruth(context.Background(), "toy", testData())
	require.NoError(t, err)
	preferences := groundTruth.Preferences()
	assert.Equal(t, 8, preferences.UserCount())
	assert.Equal(t, 8, preferences.ItemCount())
	// model and hyper-parameter artifacts are saved side by side
	assert.FileExists(t, conf.Datasets["toy"].GroundTruthPath)
	assert.FileExists(t, filepath.Join(filepath.Dir(conf.Datasets["toy"].GroundTruthPath), "mf_hparams.txt"))
}

func TestGenerateGroundTruth_UnknownDataset(t *testing.T) {
	p := New(testConfig(t), 42)
	_, err := p.GenerateGroundTruth(context.Background(), "nope", testData())
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestGenerateRecommenders(t *testing.T) {
	conf := testConfig(t)
	p := New(conf, 42)
	// stage 2 proceeds from the saved ground truth without the raw dataset
	_, err := p.GenerateGroundTruth(context.Background(), "toy", testData())
	require.NoError(t, err)
	require.NoError(t, p.GenerateRecommenders(context.Background(), "toy"))
	// one model and one hyper-parameter artifact per factor size
	recommenderPath := conf.Datasets["toy"].RecommenderPath
	assert.FileExists(t, filepath.Join(recommenderPath, "mf_factors_2.gob"))
	assert.FileExists(t, filepath.Join(recommenderPath, "mf_factors_3.gob"))
	assert.FileExists(t, filepath.Join(recommenderPath, doneMarker))
	// each artifact records the factor size in its file name
	for _, factors := range []string{"2", "3"} {
		fields, err := storage.LoadHyperparams(
			filepath.Join(recommenderPath, "mf_factors_"+factors+"_hparams.txt"))
		require.NoError(t, err)
		assert.Contains(t, fields, storage.Field{Name: "factors", Value: factors})
	}
}

func TestGenerateRecommenders_Idempotent(t *testing.T) {
	conf := testConfig(t)
	p := New(conf, 42)
	_, err := p.GenerateGroundTruth(context.Background(), "toy", testData())
	require.NoError(t, err)
	require.NoError(t, p.GenerateRecommenders(context.Background(), "toy"))
	// a second run leaves existing artifacts untouched
	recommenderPath := conf.Datasets["toy"].RecommenderPath
	modelPath := filepath.Join(recommenderPath, "mf_factors_2.gob")
	require.NoError(t, os.Remove(modelPath))
	require.NoError(t, p.GenerateRecommenders(context.Background(), "toy"))
	assert.NoFileExists(t, modelPath)
}

func TestGenerateRecommenders_SkipPopulatedDirectory(t *testing.T) {
	conf := testConfig(t)
	p := New(conf, 42)
	_, err := p.GenerateGroundTruth(context.Background(), "toy", testData())
	require.NoError(t, err)
	recommenderPath := conf.Datasets["toy"].RecommenderPath
	require.NoError(t, os.MkdirAll(recommenderPath, 0o755))
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(recommenderPath, name), nil, 0o644))
	}
	require.NoError(t, p.GenerateRecommenders(context.Background(), "toy"))
	// no recommender was calibrated and no completion marker was written
	assert.NoFileExists(t, filepath.Join(recommenderPath, "mf_factors_2.gob"))
	assert.NoFileExists(t, filepath.Join(recommenderPath, doneMarker))
}

func TestGenerateRecommenders_TwoEntriesStillRuns(t *testing.T) {
	conf := testConfig(t)
	p := New(conf, 42)
	_, err := p.GenerateGroundTruth(context.Background(), "toy", testData())
	require.NoError(t, err)
	// exactly two entries is below the skip threshold
	recommenderPath := conf.Datasets["toy"].RecommenderPath
	require.NoError(t, os.MkdirAll(recommenderPath, 0o755))
	for _, name := range []string{"a", "b"} {
		require.NoError(t, os.WriteFile(filepath.Join(recommenderPath, name), nil, 0o644))
	}
	require.NoError(t, p.GenerateRecommenders(context.Background(), "toy"))
	assert.FileExists(t, filepath.Join(recommenderPath, "mf_factors_2.gob"))
	assert.FileExists(t, filepath.Join(recommenderPath, "mf_factors_3.gob"))
	assert.FileExists(t, filepath.Join(recommenderPath, doneMarker))
}

func TestGenerateRecommenders_NotRetrievable(t *testing.T) {
	// no saved ground truth and no downloadable dataset to bootstrap from
	p := New(testConfig(t), 42)
	err := p.GenerateRecommenders(context.Background(), "toy")
	assert.True(t, errors.Is(err, errors.NotImplemented))
}

func TestGenerateRecommenders_ResolvesGroundTruthBeforeSkip(t *testing.T) {
	// even a populated directory requires a resolvable ground truth
	conf := testConfig(t)
	recommenderPath := conf.Datasets["toy"].RecommenderPath
	require.NoError(t, os.MkdirAll(recommenderPath, 0o755))
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(recommenderPath, name), nil, 0o644))
	}
	p := New(conf, 42)
	err := p.GenerateRecommenders(context.Background(), "toy")
	assert.True(t, errors.Is(err, errors.NotImplemented))
}

func TestGenerateRecommenders_MissingFactors(t *testing.T) {
	conf := testConfig(t)
	toy := conf.Datasets["toy"]
	toy.RecommenderGrid = map[string][]interface{}{"lr": {0.01}}
	conf.Datasets["toy"] = toy
	p := New(conf, 42)
	_, err := p.GenerateGroundTruth(context.Background(), "toy", testData())
	require.NoError(t, err)
	err = p.GenerateRecommenders(context.Background(), "toy")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestGenerateRecommenders_ReusesSavedGroundTruth(t *testing.T) {
	conf := testConfig(t)
	p := New(conf, 42)
	_, err := p.GenerateGroundTruth(context.Background(), "toy", testData())
	require.NoError(t, err)
	gtPath := conf.Datasets["toy"].GroundTruthPath
	info, err := os.Stat(gtPath)
	require.NoError(t, err)
	require.NoError(t, p.GenerateRecommenders(context.Background(), "toy"))
	// the saved ground truth was loaded, not refitted
	again, err := os.Stat(gtPath)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}
