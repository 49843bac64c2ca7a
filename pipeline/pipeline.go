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

// Package pipeline orchestrates the two calibration stages: fitting a ground
// truth model on real feedback, then calibrating recommenders of varying
// capacity against the preferences that ground truth induces.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gorse-io/calibrate/base"
	"github.com/gorse-io/calibrate/base/log"
	"github.com/gorse-io/calibrate/config"
	"github.com/gorse-io/calibrate/dataset"
	"github.com/gorse-io/calibrate/model"
	"github.com/gorse-io/calibrate/search"
	"github.com/gorse-io/calibrate/storage"
)

// doneMarker is written into a recommender directory once every factor size
// has been calibrated and saved.
const doneMarker = ".calibrate-done"

// Pipeline runs calibration for the datasets in a configuration. All random
// seeds are drawn from one sequence, so a pipeline seeded identically
// reproduces its splits and fits.
type Pipeline struct {
	conf  *config.Config
	seeds *base.SeedSequence
}

// New creates a pipeline.
func New(conf *config.Config, seed int64) *Pipeline {
	return &Pipeline{
		conf:  conf,
		seeds: base.NewSeedSequence(seed),
	}
}

func (p *Pipeline) searchConfig() search.Config {
	return search.Config{
		Metric:   p.conf.Recommend.EvaluationMetric,
		K:        p.conf.Recommend.EvaluationK,
		Parallel: p.conf.Recommend.Parallel,
	}
}

// GenerateGroundTruth grid-searches the ground truth model for one dataset
// over real feedback, then saves the winning model and its hyper-parameters.
func (p *Pipeline) GenerateGroundTruth(ctx context.Context, name string, data *dataset.Matrix) (model.GroundTruth, error) {
	conf, exist := p.conf.Datasets[name]
	if !exist {
		return nil, errors.NotFoundf("dataset %s in config", name)
	}
	log.Logger().Info("generate ground truth",
		zap.String("dataset", name),
		zap.String("model", conf.GroundTruthModel))
	trainSet, validSet, _ := data.Split(
		p.conf.Recommend.TrainSize, p.conf.Recommend.ValidationSize, p.seeds.Next())
	best, err := search.Search(ctx, trainSet, validSet, conf.GroundTruthModel,
		conf.GetGroundTruthGrid(), p.seeds, p.searchConfig())
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := storage.SaveModel(conf.GroundTruthPath, best.Model); err != nil {
		return nil, errors.Trace(err)
	}
	if err := storage.SaveHyperparams(hyperparamsPath(conf.GroundTruthPath), best.Params, best.Info()); err != nil {
		return nil, errors.Trace(err)
	}
	groundTruth, ok := best.Model.(model.GroundTruth)
	if !ok {
		return nil, errors.NotSupportedf("model %s as ground truth", best.ModelName)
	}
	return groundTruth, nil
}

// GenerateRecommenders calibrates one recommender per factor size against the
// preferences of the dataset's ground truth model. The ground truth is
// resolved first: loaded from disk, or fitted from scratch when absent and
// the raw dataset is retrievable. Only then is the output directory checked,
// and one that already holds generated recommenders is left untouched.
func (p *Pipeline) GenerateRecommenders(ctx context.Context, name string) error {
	conf, exist := p.conf.Datasets[name]
	if !exist {
		return errors.NotFoundf("dataset %s in config", name)
	}
	groundTruth, err := p.resolveGroundTruth(ctx, name)
	if err != nil {
		return errors.Trace(err)
	}
	done, err := recommendersGenerated(conf.RecommenderPath)
	if err != nil {
		return errors.Trace(err)
	}
	if done {
		log.Logger().Info("skip generated recommenders",
			zap.String("dataset", name),
			zap.String("path", conf.RecommenderPath))
		return nil
	}
	preferences := groundTruth.Preferences()
	trainSet, validSet, _ := preferences.Split(
		p.conf.Recommend.TrainSize, p.conf.Recommend.ValidationSize, p.seeds.Next())
	// factor sizes are calibrated one by one, every other dimension of the
	// grid is searched per size
	grid := conf.GetRecommenderGrid()
	factors, exist := grid[model.NFactors]
	if !exist {
		return errors.NotValidf("recommender grid for dataset %s without factors", name)
	}
	delete(grid, model.NFactors)
	for _, numFactors := range factors {
		pinned := grid.Copy()
		pinned[model.NFactors] = []interface{}{numFactors}
		best, err := search.Search(ctx, trainSet, validSet, conf.RecommenderModel,
			pinned, p.seeds, p.searchConfig())
		if err != nil {
			return errors.Trace(err)
		}
		prefix := filepath.Join(conf.RecommenderPath,
			fmt.Sprintf("%s_factors_%v", conf.RecommenderModel, numFactors))
		if err := storage.SaveModel(prefix+".gob", best.Model); err != nil {
			return errors.Trace(err)
		}
		if err := storage.SaveHyperparams(prefix+"_hparams.txt", best.Params, best.Info()); err != nil {
			return errors.Trace(err)
		}
	}
	if err := os.WriteFile(filepath.Join(conf.RecommenderPath, doneMarker), nil, 0o644); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("complete recommenders",
		zap.String("dataset", name),
		zap.Int("num_factors", len(factors)),
		zap.String("path", conf.RecommenderPath))
	return nil
}

// resolveGroundTruth returns the saved ground truth model of a dataset. When
// no model has been saved yet, a fresh one is fitted and saved from the raw
// dataset if it is retrievable.
func (p *Pipeline) resolveGroundTruth(ctx context.Context, name string) (model.GroundTruth, error) {
	conf := p.conf.Datasets[name]
	m, err := storage.LoadModel(conf.GroundTruthPath)
	if errors.Is(err, errors.NotFound) {
		if !dataset.Retrievable(name) {
			return nil, errors.NotImplementedf("bootstrapping ground truth for dataset %s", name)
		}
		data, err := dataset.GetDataset(name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return p.GenerateGroundTruth(ctx, name, data)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	groundTruth, ok := m.(model.GroundTruth)
	if !ok {
		return nil, errors.NotSupportedf("model %s as ground truth", model.GetModelName(m))
	}
	return groundTruth, nil
}

// recommendersGenerated reports whether a recommender directory has been
// populated by an earlier run. A directory holding more than two entries or
// a completion marker counts as generated.
func recommendersGenerated(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	if len(entries) > 2 {
		return true, nil
	}
	for _, entry := range entries {
		if entry.Name() == doneMarker {
			return true, nil
		}
	}
	return false, nil
}

// hyperparamsPath maps a model path to its hyper-parameter artifact path.
func hyperparamsPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + "_hparams.txt"
}
