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

// Package search implements exhaustive grid search over model
// hyper-parameters.
package search

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"
	"modernc.org/mathutil"

	"github.com/gorse-io/calibrate/base"
	"github.com/gorse-io/calibrate/base/encoding"
	"github.com/gorse-io/calibrate/base/log"
	"github.com/gorse-io/calibrate/base/parallel"
	"github.com/gorse-io/calibrate/base/progress"
	"github.com/gorse-io/calibrate/dataset"
	"github.com/gorse-io/calibrate/model"
	"github.com/gorse-io/calibrate/storage"
)

// Config controls one grid search.
type Config struct {
	Metric   string // metric to maximize, default "ndcg"
	K        int    // ranking cutoff, default 10
	Parallel bool   // run trials on parallel workers
}

func (conf Config) metric() string {
	if conf.Metric == "" {
		return model.NDCGMetric
	}
	return conf.Metric
}

func (conf Config) k() int {
	if conf.K <= 0 {
		return 10
	}
	return conf.K
}

// Result is the outcome of one trial.
type Result struct {
	Params model.Params
	Score  model.Score
	Model  model.Model
}

// Best is the winning trial of a grid search.
type Best struct {
	Model     model.Model
	ModelName string
	Params    model.Params
	Score     model.Score
	Metric    string
	SeedStart int64
	NumTrials int
}

// Info returns the winning trial as artifact fields: metric values first,
// then the model name, the metric the search maximized and the start of the
// seed sequence the trials drew from.
func (best Best) Info() []storage.Field {
	fields := make([]storage.Field, 0, len(best.Score)+3)
	for _, name := range best.Score.MetricNames() {
		fields = append(fields, storage.Field{
			Name:  name,
			Value: encoding.FormatFloat32(best.Score[name]),
		})
	}
	fields = append(fields, storage.Field{Name: "model", Value: best.ModelName})
	fields = append(fields, storage.Field{Name: "used", Value: best.Metric})
	fields = append(fields, storage.Field{Name: "seed_start", Value: strconv.FormatInt(best.SeedStart, 10)})
	return fields
}

// Search fits one model per combination of the grid and returns the trial
// with the highest value of the configured metric. Every trial draws its
// random seed from seeds before any trial starts, and ties are broken towards
// the earlier combination, so the winner does not depend on whether trials
// run sequentially or in parallel.
func Search(ctx context.Context, trainSet, validSet *dataset.Matrix, modelName string,
	grid model.ParamsGrid, seeds *base.SeedSequence, conf Config) (*Best, error) {
	combinations, err := grid.Enumerate()
	if err != nil {
		return nil, errors.Trace(err)
	}
	for i := range combinations {
		combinations[i][model.RandomState] = seeds.Next()
	}
	nWorkers := 1
	if conf.Parallel {
		nWorkers = mathutil.Min(len(combinations), runtime.NumCPU())
	}
	log.Logger().Info("start grid search",
		zap.String("model", modelName),
		zap.Int("num_trials", len(combinations)),
		zap.Int("num_workers", nWorkers),
		zap.String("metric", conf.metric()))
	searchStart := time.Now()
	_, span := progress.Start(ctx, "Search", len(combinations))
	results := make([]Result, len(combinations))
	err = parallel.Parallel(len(combinations), nWorkers, func(_, jobId int) error {
		result, err := runTrial(ctx, trainSet, validSet, modelName, combinations[jobId], conf)
		if err != nil {
			return errors.Trace(err)
		}
		results[jobId] = result
		span.Add(1)
		return nil
	})
	if err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	span.End()
	best, err := reduce(results, modelName, conf.metric())
	if err != nil {
		return nil, errors.Trace(err)
	}
	best.SeedStart = seeds.Start()
	log.Logger().Info("complete grid search",
		zap.String("model", modelName),
		zap.String("search_time", time.Since(searchStart).String()),
		zap.Any("best_params", best.Params),
		zap.Float32("best_score", best.Score[best.Metric]))
	return best, nil
}

// runTrial fits and validates a model with one parameter combination.
func runTrial(ctx context.Context, trainSet, validSet *dataset.Matrix,
	modelName string, params model.Params, conf Config) (Result, error) {
	m, err := model.NewModel(modelName, params)
	if err != nil {
		return Result{}, errors.Trace(err)
	}
	if err := m.Fit(ctx, trainSet); err != nil {
		return Result{}, errors.Trace(err)
	}
	score, err := m.Validate(trainSet, validSet, conf.k())
	if err != nil {
		return Result{}, errors.Trace(err)
	}
	log.Logger().Debug("complete trial",
		zap.Any("params", params),
		zap.Any("score", score))
	return Result{Params: params, Score: score, Model: m}, nil
}

// reduce picks the trial with the strictly highest metric value. Scanning in
// submission order with a strict comparison keeps the first of tied trials.
func reduce(results []Result, modelName, metric string) (*Best, error) {
	if len(results) == 0 {
		return nil, errors.NotValidf("empty search results")
	}
	bestIndex := -1
	bestScore := float32(0)
	for i, result := range results {
		score, exist := result.Score[metric]
		if !exist {
			return nil, errors.NotValidf("unknown metric %q, supported metrics are %v",
				metric, result.Score.MetricNames())
		}
		if bestIndex < 0 || score > bestScore {
			bestIndex = i
			bestScore = score
		}
	}
	winner := results[bestIndex]
	return &Best{
		Model:     winner.Model,
		ModelName: modelName,
		Params:    winner.Params,
		Score:     winner.Score,
		Metric:    metric,
		NumTrials: len(results),
	}, nil
}
