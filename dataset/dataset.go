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
	"math/rand"
)

// Matrix is a sparse user-item rating matrix. Ratings are stored twice, once
// per user and once per item, so that models can iterate rows or columns
// without transposing. A matrix is never mutated after splitting.
type Matrix struct {
	userItems  [][]int32
	userValues [][]float32
	itemUsers  [][]int32
	itemValues [][]float32
	count      int
}

// NewMatrix creates an empty matrix with the given dimensions.
func NewMatrix(numUsers, numItems int) *Matrix {
	return &Matrix{
		userItems:  make([][]int32, numUsers),
		userValues: make([][]float32, numUsers),
		itemUsers:  make([][]int32, numItems),
		itemValues: make([][]float32, numItems),
	}
}

// FromDense creates a matrix from a dense score matrix. Every entry is kept,
// zeros included.
func FromDense(dense [][]float32) *Matrix {
	numItems := 0
	if len(dense) > 0 {
		numItems = len(dense[0])
	}
	m := NewMatrix(len(dense), numItems)
	for u, row := range dense {
		for i, v := range row {
			m.Add(int32(u), int32(i), v)
		}
	}
	return m
}

// UserCount returns the number of rows.
func (m *Matrix) UserCount() int {
	return len(m.userItems)
}

// ItemCount returns the number of columns.
func (m *Matrix) ItemCount() int {
	return len(m.itemUsers)
}

// Count returns the number of stored ratings.
func (m *Matrix) Count() int {
	return m.count
}

// Add inserts a rating. The matrix grows if user or item is out of range.
func (m *Matrix) Add(user, item int32, value float32) {
	for int(user) >= len(m.userItems) {
		m.userItems = append(m.userItems, nil)
		m.userValues = append(m.userValues, nil)
	}
	for int(item) >= len(m.itemUsers) {
		m.itemUsers = append(m.itemUsers, nil)
		m.itemValues = append(m.itemValues, nil)
	}
	m.userItems[user] = append(m.userItems[user], item)
	m.userValues[user] = append(m.userValues[user], value)
	m.itemUsers[item] = append(m.itemUsers[item], user)
	m.itemValues[item] = append(m.itemValues[item], value)
	m.count++
}

// GetUserItems returns the items rated by a user.
func (m *Matrix) GetUserItems(user int32) []int32 {
	return m.userItems[user]
}

// GetUserValues returns the ratings of a user, aligned with GetUserItems.
func (m *Matrix) GetUserValues(user int32) []float32 {
	return m.userValues[user]
}

// GetItemUsers returns the users who rated an item.
func (m *Matrix) GetItemUsers(item int32) []int32 {
	return m.itemUsers[item]
}

// GetItemValues returns the ratings of an item, aligned with GetItemUsers.
func (m *Matrix) GetItemValues(item int32) []float32 {
	return m.itemValues[item]
}

// ForEach visits every stored rating in user-major order.
func (m *Matrix) ForEach(f func(user, item int32, value float32)) {
	for u := range m.userItems {
		for j, i := range m.userItems[u] {
			f(int32(u), i, m.userValues[u][j])
		}
	}
}

type entry struct {
	user  int32
	item  int32
	value float32
}

// Split partitions ratings into train, validation and test matrices with the
// given proportions. trainSize and validSize are fractions of the rating
// count; the remainder goes to the test matrix. All three matrices keep the
// dimensions of the receiver. The split is reproducible from seed.
func (m *Matrix) Split(trainSize, validSize float64, seed int64) (train, valid, test *Matrix) {
	entries := make([]entry, 0, m.count)
	m.ForEach(func(user, item int32, value float32) {
		entries = append(entries, entry{user, item, value})
	})
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})
	numTrain := int(float64(len(entries)) * trainSize)
	numValid := int(float64(len(entries)) * validSize)
	train = NewMatrix(m.UserCount(), m.ItemCount())
	valid = NewMatrix(m.UserCount(), m.ItemCount())
	test = NewMatrix(m.UserCount(), m.ItemCount())
	for i, e := range entries {
		switch {
		case i < numTrain:
			train.Add(e.user, e.item, e.value)
		case i < numTrain+numValid:
			valid.Add(e.user, e.item, e.value)
		default:
			test.Add(e.user, e.item, e.value)
		}
	}
	return
}
