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

package model

import (
	"sort"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/gorse-io/calibrate/base"
	"github.com/gorse-io/calibrate/base/parallel"
	"github.com/gorse-io/calibrate/common/floats"
	"github.com/gorse-io/calibrate/dataset"
)

// Metric names produced by the evaluator.
const (
	NDCGMetric      = "ndcg"
	PrecisionMetric = "precision"
	RecallMetric    = "recall"
)

// Metric is used by evaluators in personalized ranking tasks.
type Metric func(targetSet mapset.Set[int32], rankList []int32) float32

// Predictor scores a user-item pair. Fitted models implement it.
type Predictor interface {
	Predict(userIndex, itemIndex int32) float32
}

// Evaluate evaluates a fitted model in top-k tasks. For each user with
// feedback in the test set, the test items are ranked among numCandidates
// sampled negatives. Negative sampling is seeded per user, so results do not
// depend on worker scheduling.
func Evaluate(estimator Predictor, testSet, trainSet *dataset.Matrix, topK, numCandidates, nJobs int, scorers ...Metric) []float32 {
	// per-user results are reduced in user order, so float accumulation does
	// not depend on how jobs land on workers
	userScores := make([][]float32, testSet.UserCount())
	_ = parallel.Parallel(testSet.UserCount(), nJobs, func(_, userIndex int) error {
		targetSet := mapset.NewSet(testSet.GetUserItems(int32(userIndex))...)
		if targetSet.Cardinality() == 0 {
			return nil
		}
		// sample negatives outside the user's train and test items
		rng := base.NewRandomGenerator(int64(userIndex))
		exclude := mapset.NewSet(trainSet.GetUserItems(int32(userIndex))...)
		negatives := rng.Sample(0, testSet.ItemCount(), numCandidates, exclude, targetSet)
		candidates := make([]int32, 0, targetSet.Cardinality()+len(negatives))
		candidates = append(candidates, testSet.GetUserItems(int32(userIndex))...)
		candidates = append(candidates, negatives...)
		rankList := rank(estimator, int32(userIndex), candidates, topK)
		scores := make([]float32, len(scorers))
		for i, metric := range scorers {
			scores[i] = metric(targetSet, rankList)
		}
		userScores[userIndex] = scores
		return nil
	})
	sum := make([]float32, len(scorers))
	count := float32(0)
	for _, scores := range userScores {
		if scores == nil {
			continue
		}
		count++
		for j := range scores {
			sum[j] += scores[j]
		}
	}
	if count > 0 {
		floats.MulConst(sum, 1/count)
	}
	return sum
}

// rank returns the top-n candidates by predicted score. Candidate order
// breaks score ties, so the result is deterministic for a fixed model.
func rank(estimator Predictor, userIndex int32, candidates []int32, topN int) []int32 {
	scores := make([]float32, len(candidates))
	order := make([]int, len(candidates))
	for i, itemIndex := range candidates {
		scores[i] = estimator.Predict(userIndex, itemIndex)
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	if topN > len(order) {
		topN = len(order)
	}
	rankList := make([]int32, topN)
	for i := 0; i < topN; i++ {
		rankList[i] = candidates[order[i]]
	}
	return rankList
}

// NDCG means Normalized Discounted Cumulative Gain.
func NDCG(targetSet mapset.Set[int32], rankList []int32) float32 {
	// IDCG = \sum^{|REL|}_{i=1} \frac {1} {\log_2(i+1)}
	idcg := float32(0)
	for i := 0; i < targetSet.Cardinality() && i < len(rankList); i++ {
		idcg += 1.0 / math32.Log2(float32(i)+2.0)
	}
	// DCG = \sum^{N}_{i=1} \frac {2^{rel_i}-1} {\log_2(i+1)}
	dcg := float32(0)
	for i, itemId := range rankList {
		if targetSet.Contains(itemId) {
			dcg += 1.0 / math32.Log2(float32(i)+2.0)
		}
	}
	return dcg / idcg
}

// Precision is the fraction of relevant items among the recommended items.
func Precision(targetSet mapset.Set[int32], rankList []int32) float32 {
	hit := float32(0)
	for _, itemId := range rankList {
		if targetSet.Contains(itemId) {
			hit++
		}
	}
	return hit / float32(len(rankList))
}

// Recall is the fraction of relevant items that have been recommended over
// the total amount of relevant items.
func Recall(targetSet mapset.Set[int32], rankList []int32) float32 {
	hit := 0
	for _, itemId := range rankList {
		if targetSet.Contains(itemId) {
			hit++
		}
	}
	return float32(hit) / float32(targetSet.Cardinality())
}

// evaluateRanking is the shared Validate implementation of the models in
// this package.
func evaluateRanking(estimator Predictor, trainSet, validSet *dataset.Matrix, k, numCandidates, nJobs int) Score {
	scores := Evaluate(estimator, validSet, trainSet, k, numCandidates, nJobs, NDCG, Precision, Recall)
	return Score{
		NDCGMetric:      scores[0],
		PrecisionMetric: scores[1],
		RecallMetric:    scores[2],
	}
}
