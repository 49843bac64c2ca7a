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

package base

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
)

func TestRandomGenerator_Deterministic(t *testing.T) {
	a := NewRandomGenerator(0).NormalMatrix(4, 8, 0, 0.1)
	b := NewRandomGenerator(0).NormalMatrix(4, 8, 0, 0.1)
	assert.Equal(t, a, b)
	c := NewRandomGenerator(1).NormalMatrix(4, 8, 0, 0.1)
	assert.NotEqual(t, a, c)
}

func TestRandomGenerator_Sample(t *testing.T) {
	rng := NewRandomGenerator(0)
	exclude := mapset.NewSet[int32](0, 1, 2, 3, 4)
	for i := 0; i < 10; i++ {
		sampled := rng.Sample(0, 10, 3, exclude)
		assert.Len(t, sampled, 3)
		for _, v := range sampled {
			assert.False(t, exclude.Contains(v))
		}
	}
	// exhausting the interval returns everything outside exclude
	sampled := rng.Sample(0, 10, 100, exclude)
	assert.Len(t, sampled, 5)
}
