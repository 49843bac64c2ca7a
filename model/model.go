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
	"context"
	"io"
	"reflect"
	"sort"

	"github.com/juju/errors"
	"github.com/samber/lo"

	"github.com/gorse-io/calibrate/base"
	"github.com/gorse-io/calibrate/base/encoding"
	"github.com/gorse-io/calibrate/dataset"
)

// Score maps metric names to evaluation results. Larger is better for every
// metric produced by the evaluator.
type Score map[string]float32

// MetricNames returns metric names in lexicographic order.
func (score Score) MetricNames() []string {
	names := lo.Keys(score)
	sort.Strings(names)
	return names
}

// Model is the interface for all models. Any model in this package should
// implement it.
type Model interface {
	// Set parameters.
	SetParams(params Params)
	// Get parameters.
	GetParams() Params
	// Clear model weights.
	Clear()
	// Fit a model with a train set.
	Fit(ctx context.Context, trainSet *dataset.Matrix) error
	// Validate a fitted model against a validation set with ranking cutoff k.
	Validate(trainSet, validSet *dataset.Matrix, k int) (Score, error)
	// Marshal model into byte stream.
	Marshal(w io.Writer) error
	// Unmarshal model from byte stream.
	Unmarshal(r io.Reader) error
}

// GroundTruth is a model whose learned preference scores can stand in for
// real user preferences and be used as training signal for another model.
type GroundTruth interface {
	Model
	// Preferences returns the learned user-item affinity scores.
	Preferences() *dataset.Matrix
}

// BaseModel must be included by every model. Hyper-parameters and the random
// generator are managed by the BaseModel.
type BaseModel struct {
	Params    Params               // Hyper-parameters
	rng       base.RandomGenerator // Random generator
	randState int64                // Random seed
}

// SetParams sets hyper-parameters for the BaseModel.
func (model *BaseModel) SetParams(params Params) {
	model.Params = params
	model.randState = model.Params.GetInt64(RandomState, 0)
	model.rng = base.NewRandomGenerator(model.randState)
}

// GetParams returns all hyper-parameters.
func (model *BaseModel) GetParams() Params {
	return model.Params
}

func (model *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return model.rng
}

// NewModel creates a model by name.
func NewModel(name string, params Params) (Model, error) {
	switch name {
	case "mf":
		return NewMF(params), nil
	case "als":
		return NewALS(params), nil
	}
	return nil, errors.NotValidf("unknown model %q", name)
}

// GetModelName returns the name of a model.
func GetModelName(m Model) string {
	switch m.(type) {
	case *MF:
		return "mf"
	case *ALS:
		return "als"
	default:
		return reflect.TypeOf(m).String()
	}
}

// MarshalModel writes a model with its name to a byte stream.
func MarshalModel(w io.Writer, m Model) error {
	if err := encoding.WriteString(w, GetModelName(m)); err != nil {
		return errors.Trace(err)
	}
	if err := m.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// UnmarshalModel reads a model written by MarshalModel.
func UnmarshalModel(r io.Reader) (Model, error) {
	name, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch name {
	case "mf":
		var mf MF
		if err := mf.Unmarshal(r); err != nil {
			return nil, errors.Trace(err)
		}
		return &mf, nil
	case "als":
		var als ALS
		if err := als.Unmarshal(r); err != nil {
			return nil, errors.Trace(err)
		}
		return &als, nil
	}
	return nil, errors.NotValidf("unknown model %q", name)
}
