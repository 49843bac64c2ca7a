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

package search

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/calibrate/base"
	"github.com/gorse-io/calibrate/dataset"
	"github.com/gorse-io/calibrate/model"
	"github.com/gorse-io/calibrate/storage"
)

func searchSets() (trainSet, validSet *dataset.Matrix) {
	m := dataset.NewMatrix(8, 8)
	for u := int32(0); u < 8; u++ {
		for i := int32(0); i < 8; i++ {
			if (u < 4) == (i < 4) {
				m.Add(u, i, 5)
			}
		}
	}
	trainSet, validSet, _ = m.Split(0.7, 0.3, 0)
	return
}

func TestSearch(t *testing.T) {
	trainSet, validSet := searchSets()
	grid := model.ParamsGrid{
		model.NFactors: {2, 4},
		model.Lr:       {0.01, 0.05},
		model.NEpochs:  {10},
	}
	best, err := Search(context.Background(), trainSet, validSet, "mf", grid,
		base.NewSeedSequence(0), Config{})
	require.NoError(t, err)
	assert.Equal(t, "mf", best.ModelName)
	assert.Equal(t, model.NDCGMetric, best.Metric)
	assert.Equal(t, 4, best.NumTrials)
	assert.NotNil(t, best.Model)
	// the winner carries every grid dimension plus its drawn seed
	for name := range grid {
		assert.Contains(t, best.Params, name)
	}
	assert.Contains(t, best.Params, model.RandomState)
	assert.Contains(t, best.Score, model.NDCGMetric)
	// provenance records where the seed sequence began
	assert.Equal(t, int64(0), best.SeedStart)
}

func TestSearch_ParallelMatchesSequential(t *testing.T) {
	trainSet, validSet := searchSets()
	grid := model.ParamsGrid{
		model.NFactors: {2, 4},
		model.Lr:       {0.01, 0.05},
		model.NEpochs:  {5},
	}
	sequential, err := Search(context.Background(), trainSet, validSet, "mf", grid,
		base.NewSeedSequence(42), Config{Parallel: false})
	require.NoError(t, err)
	parallelized, err := Search(context.Background(), trainSet, validSet, "mf", grid,
		base.NewSeedSequence(42), Config{Parallel: true})
	require.NoError(t, err)
	assert.Equal(t, sequential.Params, parallelized.Params)
	assert.Equal(t, sequential.Score, parallelized.Score)
}

func TestSearch_UnknownMetric(t *testing.T) {
	trainSet, validSet := searchSets()
	grid := model.ParamsGrid{model.NFactors: {2}, model.NEpochs: {1}}
	_, err := Search(context.Background(), trainSet, validSet, "mf", grid,
		base.NewSeedSequence(0), Config{Metric: "auc"})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestSearch_UnknownModel(t *testing.T) {
	trainSet, validSet := searchSets()
	grid := model.ParamsGrid{model.NFactors: {2}}
	_, err := Search(context.Background(), trainSet, validSet, "svd++", grid,
		base.NewSeedSequence(0), Config{})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestSearch_EmptyGridValues(t *testing.T) {
	trainSet, validSet := searchSets()
	grid := model.ParamsGrid{model.NFactors: {}}
	_, err := Search(context.Background(), trainSet, validSet, "mf", grid,
		base.NewSeedSequence(0), Config{})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestReduce(t *testing.T) {
	results := []Result{
		{Params: model.Params{model.NFactors: 8}, Score: model.Score{"ndcg": 0.3}},
		{Params: model.Params{model.NFactors: 16}, Score: model.Score{"ndcg": 0.5}},
		{Params: model.Params{model.NFactors: 32}, Score: model.Score{"ndcg": 0.4}},
	}
	best, err := reduce(results, "mf", "ndcg")
	require.NoError(t, err)
	assert.Equal(t, 16, best.Params.GetInt(model.NFactors, 0))
	assert.Equal(t, float32(0.5), best.Score["ndcg"])
}

func TestReduce_TieKeepsFirst(t *testing.T) {
	results := []Result{
		{Params: model.Params{model.NFactors: 8}, Score: model.Score{"ndcg": 0.5}},
		{Params: model.Params{model.NFactors: 16}, Score: model.Score{"ndcg": 0.5}},
	}
	best, err := reduce(results, "mf", "ndcg")
	require.NoError(t, err)
	assert.Equal(t, 8, best.Params.GetInt(model.NFactors, 0))
}

func TestReduce_MissingMetric(t *testing.T) {
	results := []Result{{Score: model.Score{"ndcg": 0.5}}}
	_, err := reduce(results, "mf", "auc")
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = reduce(nil, "mf", "ndcg")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestBest_Info(t *testing.T) {
	best := Best{
		ModelName: "mf",
		Score:     model.Score{"ndcg": 0.5, "precision": 0.25},
		Metric:    "ndcg",
		SeedStart: 42,
	}
	fields := best.Info()
	require.Len(t, fields, 5)
	assert.Equal(t, "ndcg", fields[0].Name)
	assert.Equal(t, "0.5", fields[0].Value)
	assert.Equal(t, "precision", fields[1].Name)
	assert.Equal(t, storage.Field{Name: "model", Value: "mf"}, fields[2])
	assert.Equal(t, storage.Field{Name: "used", Value: "ndcg"}, fields[3])
	assert.Equal(t, storage.Field{Name: "seed_start", Value: "42"}, fields[4])
}
