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

import "sync"

// SeedSequence yields a strictly increasing, reproducible stream of random
// seeds. The starting value is kept so that artifacts can record where the
// stream began. A sequence is created once at program start and never reset.
type SeedSequence struct {
	mu    sync.Mutex
	start int64
	next  int64
}

// NewSeedSequence creates a seed sequence beginning at start.
func NewSeedSequence(start int64) *SeedSequence {
	return &SeedSequence{start: start, next: start}
}

// Start returns the first seed of the sequence.
func (s *SeedSequence) Start() int64 {
	return s.start
}

// Next returns the next seed in the sequence.
func (s *SeedSequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seed := s.next
	s.next++
	return seed
}
