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
	"encoding/binary"
	"io"
	"runtime"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gorse-io/calibrate/base/encoding"
	"github.com/gorse-io/calibrate/base/log"
	"github.com/gorse-io/calibrate/base/parallel"
	"github.com/gorse-io/calibrate/base/progress"
	"github.com/gorse-io/calibrate/common/floats"
	"github.com/gorse-io/calibrate/dataset"
)

// ALS is alternating least squares for implicit feedback, fitted by
// element-wise coordinate descent. Observed entries carry a confidence
//
//	c_{ui} = 1 + alpha * v_{ui}
//
// and are regressed towards preference 1.
//
// Hyper-parameters:
//
//	factors        - The number of latent factors. Default is 16.
//	regularization - The regularization strength. Default is 0.06.
//	alpha          - The confidence weight. Default is 40.
//	n_epochs       - The number of training epochs. Default is 15.
//	init_std_dev   - The standard deviation of initial latent factors. Default is 0.1.
type ALS struct {
	BaseModel
	UserFactor      [][]float32
	ItemFactor      [][]float32
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet
	// Hyper parameters
	nFactors   int
	nEpochs    int
	reg        float32
	alpha      float32
	initStdDev float32
}

// NewALS creates an ALS model.
func NewALS(params Params) *ALS {
	als := new(ALS)
	als.SetParams(params)
	return als
}

// SetParams sets hyper-parameters for the ALS model.
func (als *ALS) SetParams(params Params) {
	als.BaseModel.SetParams(params)
	als.nFactors = als.Params.GetInt(NFactors, 16)
	als.nEpochs = als.Params.GetInt(NEpochs, 15)
	als.reg = als.Params.GetFloat32(Reg, 0.06)
	als.alpha = als.Params.GetFloat32(Alpha, 40)
	als.initStdDev = als.Params.GetFloat32(InitStdDev, 0.1)
}

// Predict by the ALS model. Users and items without any feedback in the
// train set score zero.
func (als *ALS) Predict(userIndex, itemIndex int32) float32 {
	if int(userIndex) >= len(als.UserFactor) || int(itemIndex) >= len(als.ItemFactor) {
		return 0
	}
	if !als.UserPredictable.Test(uint(userIndex)) || !als.ItemPredictable.Test(uint(itemIndex)) {
		return 0
	}
	return floats.Dot(als.UserFactor[userIndex], als.ItemFactor[itemIndex])
}

// Fit the ALS model. Each half-epoch solves one side of the factorization
// with the other side fixed. Rows are independent, so solving them on
// parallel workers yields the same factors as a sequential sweep.
func (als *ALS) Fit(ctx context.Context, trainSet *dataset.Matrix) error {
	log.Logger().Info("fit als",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Any("params", als.Params))
	als.Init(trainSet)
	nJobs := runtime.NumCPU()
	_, span := progress.Start(ctx, "ALS.Fit", als.nEpochs)
	for epoch := 1; epoch <= als.nEpochs; epoch++ {
		fitStart := time.Now()
		// update user factors
		err := parallel.Parallel(trainSet.UserCount(), nJobs, func(_, userIndex int) error {
			als.updateRow(als.UserFactor[userIndex], als.ItemFactor,
				trainSet.GetUserItems(int32(userIndex)), trainSet.GetUserValues(int32(userIndex)))
			return nil
		})
		if err != nil {
			span.Fail(err)
			return errors.Trace(err)
		}
		// update item factors
		err = parallel.Parallel(trainSet.ItemCount(), nJobs, func(_, itemIndex int) error {
			als.updateRow(als.ItemFactor[itemIndex], als.UserFactor,
				trainSet.GetItemUsers(int32(itemIndex)), trainSet.GetItemValues(int32(itemIndex)))
			return nil
		})
		if err != nil {
			span.Fail(err)
			return errors.Trace(err)
		}
		fitTime := time.Since(fitStart)
		log.Logger().Debug("fit als",
			zap.Int("epoch", epoch),
			zap.Int("n_epochs", als.nEpochs),
			zap.String("fit_time", fitTime.String()))
		span.Add(1)
	}
	span.End()
	return nil
}

// updateRow solves the latent factors of one row by coordinate descent with
// the other side fixed. other[indices[j]] are the fixed factors of the
// observed entries and values[j] their feedback strengths.
func (als *ALS) updateRow(row []float32, other [][]float32, indices []int32, values []float32) {
	if len(indices) == 0 {
		return
	}
	// residuals of the observed entries: e_j = 1 - <row, other_j>
	residuals := make([]float32, len(indices))
	confidences := make([]float32, len(indices))
	for j, idx := range indices {
		residuals[j] = 1 - floats.Dot(row, other[idx])
		confidences[j] = 1 + als.alpha*values[j]
	}
	for f := 0; f < als.nFactors; f++ {
		var numerator, denominator float32
		for j, idx := range indices {
			otherFactor := other[idx][f]
			numerator += confidences[j] * (residuals[j] + row[f]*otherFactor) * otherFactor
			denominator += confidences[j] * otherFactor * otherFactor
		}
		denominator += als.reg
		updated := numerator / denominator
		delta := updated - row[f]
		for j, idx := range indices {
			residuals[j] -= delta * other[idx][f]
		}
		row[f] = updated
	}
}

// Init the latent factors of the ALS model.
func (als *ALS) Init(trainSet *dataset.Matrix) {
	rng := als.GetRandomGenerator()
	als.UserFactor = rng.NormalMatrix(trainSet.UserCount(), als.nFactors, 0, als.initStdDev)
	als.ItemFactor = rng.NormalMatrix(trainSet.ItemCount(), als.nFactors, 0, als.initStdDev)
	als.UserPredictable, als.ItemPredictable = predictableSets(trainSet)
}

// Validate the fitted ALS model on a validation set.
func (als *ALS) Validate(trainSet, validSet *dataset.Matrix, k int) (Score, error) {
	if als.UserFactor == nil || als.ItemFactor == nil {
		return nil, errors.NotValidf("als model is not fitted")
	}
	return evaluateRanking(als, trainSet, validSet, k, defaultNumCandidates, runtime.NumCPU()), nil
}

// Preferences returns the reconstructed dense score matrix.
func (als *ALS) Preferences() *dataset.Matrix {
	dense := make([][]float32, len(als.UserFactor))
	for u := range dense {
		dense[u] = make([]float32, len(als.ItemFactor))
		for i := range dense[u] {
			dense[u][i] = floats.Dot(als.UserFactor[u], als.ItemFactor[i])
		}
	}
	return dataset.FromDense(dense)
}

// Clear the latent factors of the ALS model.
func (als *ALS) Clear() {
	als.UserFactor = nil
	als.ItemFactor = nil
	als.UserPredictable = nil
	als.ItemPredictable = nil
}

// Marshal the ALS model into a byte stream.
func (als *ALS) Marshal(w io.Writer) error {
	if err := encoding.WriteGob(w, als.Params); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(als.UserFactor))); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(als.ItemFactor))); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, als.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, als.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	if err := writeBitSet(w, als.UserPredictable); err != nil {
		return errors.Trace(err)
	}
	if err := writeBitSet(w, als.ItemPredictable); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal the ALS model from a byte stream.
func (als *ALS) Unmarshal(r io.Reader) error {
	var params Params
	if err := encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	als.SetParams(params)
	var numUsers, numItems int32
	if err := binary.Read(r, binary.LittleEndian, &numUsers); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Read(r, binary.LittleEndian, &numItems); err != nil {
		return errors.Trace(err)
	}
	als.UserFactor = newZeroMatrix(int(numUsers), als.nFactors)
	als.ItemFactor = newZeroMatrix(int(numItems), als.nFactors)
	if err := encoding.ReadMatrix(r, als.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.ReadMatrix(r, als.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	userPredictable, err := readBitSet(r)
	if err != nil {
		return errors.Trace(err)
	}
	itemPredictable, err := readBitSet(r)
	if err != nil {
		return errors.Trace(err)
	}
	als.UserPredictable = userPredictable
	als.ItemPredictable = itemPredictable
	return nil
}
