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

package dataset

import (
	"github.com/chewxy/math32"
)

// PreferencesToProbs transforms preference scores into probabilities by
// applying softmax row-wise. temperature flattens (>1) or sharpens (<1) the
// distribution.
func PreferencesToProbs(preferences [][]float32, temperature float32) [][]float32 {
	probs := make([][]float32, len(preferences))
	for u, row := range preferences {
		probs[u] = make([]float32, len(row))
		if len(row) == 0 {
			continue
		}
		// subtract the row maximum for numerical stability
		maxScore := row[0]
		for _, v := range row {
			if v > maxScore {
				maxScore = v
			}
		}
		sum := float32(0)
		for i, v := range row {
			probs[u][i] = math32.Exp((v - maxScore) / temperature)
			sum += probs[u][i]
		}
		for i := range probs[u] {
			probs[u][i] /= sum
		}
	}
	return probs
}

// OneHot makes a one-hot-encoded matrix from labels.
func OneHot(labels []int, maxLabel int) [][]int {
	oneHot := make([][]int, len(labels))
	for i, label := range labels {
		oneHot[i] = make([]int, maxLabel)
		oneHot[i][label] = 1
	}
	return oneHot
}
