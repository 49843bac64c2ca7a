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
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gorse-io/calibrate/base/encoding"
	"github.com/gorse-io/calibrate/base/log"
	"github.com/gorse-io/calibrate/base/progress"
	"github.com/gorse-io/calibrate/common/floats"
	"github.com/gorse-io/calibrate/dataset"
)

// MF is matrix factorization for explicit feedback, fitted by stochastic
// gradient descent:
//
//	\hat r_{ui} = p_u^T q_i
//
// Hyper-parameters:
//
//	factors        - The number of latent factors. Default is 16.
//	lr             - The learning rate. Default is 0.005.
//	regularization - The regularization strength. Default is 0.02.
//	n_epochs       - The number of SGD epochs. Default is 20.
//	init_std_dev   - The standard deviation of initial latent factors. Default is 0.1.
type MF struct {
	BaseModel
	UserFactor      [][]float32
	ItemFactor      [][]float32
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet
	// Hyper parameters
	nFactors   int
	nEpochs    int
	lr         float32
	reg        float32
	initStdDev float32
}

// NewMF creates a MF model.
func NewMF(params Params) *MF {
	mf := new(MF)
	mf.SetParams(params)
	return mf
}

// SetParams sets hyper-parameters of the MF model.
func (mf *MF) SetParams(params Params) {
	mf.BaseModel.SetParams(params)
	mf.nFactors = mf.Params.GetInt(NFactors, 16)
	mf.nEpochs = mf.Params.GetInt(NEpochs, 20)
	mf.lr = mf.Params.GetFloat32(Lr, 0.005)
	mf.reg = mf.Params.GetFloat32(Reg, 0.02)
	mf.initStdDev = mf.Params.GetFloat32(InitStdDev, 0.1)
}

// Predict by the MF model. Users and items without any feedback in the train
// set score zero.
func (mf *MF) Predict(userIndex, itemIndex int32) float32 {
	if int(userIndex) >= len(mf.UserFactor) || int(itemIndex) >= len(mf.ItemFactor) {
		return 0
	}
	if !mf.UserPredictable.Test(uint(userIndex)) || !mf.ItemPredictable.Test(uint(itemIndex)) {
		return 0
	}
	return floats.Dot(mf.UserFactor[userIndex], mf.ItemFactor[itemIndex])
}

// Fit the MF model. Entries of the train set are shuffled each epoch with the
// model's own random generator, so a fixed random_state reproduces the fit.
func (mf *MF) Fit(ctx context.Context, trainSet *dataset.Matrix) error {
	log.Logger().Info("fit mf",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Any("params", mf.Params))
	mf.Init(trainSet)
	type sample struct {
		user  int32
		item  int32
		value float32
	}
	samples := make([]sample, 0, trainSet.Count())
	trainSet.ForEach(func(user, item int32, value float32) {
		samples = append(samples, sample{user, item, value})
	})
	rng := mf.GetRandomGenerator()
	grad := make([]float32, mf.nFactors)
	_, span := progress.Start(ctx, "MF.Fit", mf.nEpochs)
	for epoch := 1; epoch <= mf.nEpochs; epoch++ {
		fitStart := time.Now()
		cost := float32(0)
		rng.Shuffle(len(samples), func(i, j int) {
			samples[i], samples[j] = samples[j], samples[i]
		})
		for _, s := range samples {
			userFactor := mf.UserFactor[s.user]
			itemFactor := mf.ItemFactor[s.item]
			diff := s.value - floats.Dot(userFactor, itemFactor)
			cost += diff * diff
			// p_u <- p_u + lr * (diff * q_i - reg * p_u)
			floats.MulConstTo(itemFactor, diff, grad)
			floats.MulConstAdd(userFactor, -mf.reg, grad)
			floats.MulConstAdd(grad, mf.lr, userFactor)
			// q_i <- q_i + lr * (diff * p_u - reg * q_i)
			floats.MulConstTo(userFactor, diff, grad)
			floats.MulConstAdd(itemFactor, -mf.reg, grad)
			floats.MulConstAdd(grad, mf.lr, itemFactor)
		}
		fitTime := time.Since(fitStart)
		log.Logger().Debug("fit mf",
			zap.Int("epoch", epoch),
			zap.Int("n_epochs", mf.nEpochs),
			zap.String("fit_time", fitTime.String()),
			zap.Float32("rmse", math32.Sqrt(cost/float32(len(samples)))))
		span.Add(1)
	}
	span.End()
	return nil
}

// Init the latent factors of the MF model.
func (mf *MF) Init(trainSet *dataset.Matrix) {
	rng := mf.GetRandomGenerator()
	mf.UserFactor = rng.NormalMatrix(trainSet.UserCount(), mf.nFactors, 0, mf.initStdDev)
	mf.ItemFactor = rng.NormalMatrix(trainSet.ItemCount(), mf.nFactors, 0, mf.initStdDev)
	mf.UserPredictable, mf.ItemPredictable = predictableSets(trainSet)
}

// Validate the fitted MF model on a validation set.
func (mf *MF) Validate(trainSet, validSet *dataset.Matrix, k int) (Score, error) {
	if mf.UserFactor == nil || mf.ItemFactor == nil {
		return nil, errors.NotValidf("mf model is not fitted")
	}
	return evaluateRanking(mf, trainSet, validSet, k, defaultNumCandidates, runtime.NumCPU()), nil
}

// Preferences returns the reconstructed dense score matrix.
func (mf *MF) Preferences() *dataset.Matrix {
	dense := make([][]float32, len(mf.UserFactor))
	for u := range dense {
		dense[u] = make([]float32, len(mf.ItemFactor))
		for i := range dense[u] {
			dense[u][i] = floats.Dot(mf.UserFactor[u], mf.ItemFactor[i])
		}
	}
	return dataset.FromDense(dense)
}

// Clear the latent factors of the MF model.
func (mf *MF) Clear() {
	mf.UserFactor = nil
	mf.ItemFactor = nil
	mf.UserPredictable = nil
	mf.ItemPredictable = nil
}

// Marshal the MF model into a byte stream.
func (mf *MF) Marshal(w io.Writer) error {
	// write params
	if err := encoding.WriteGob(w, mf.Params); err != nil {
		return errors.Trace(err)
	}
	// write dimensions
	if err := binary.Write(w, binary.LittleEndian, int32(len(mf.UserFactor))); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(mf.ItemFactor))); err != nil {
		return errors.Trace(err)
	}
	// write latent factors
	if err := encoding.WriteMatrix(w, mf.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, mf.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	// write predictable sets
	if err := writeBitSet(w, mf.UserPredictable); err != nil {
		return errors.Trace(err)
	}
	if err := writeBitSet(w, mf.ItemPredictable); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal the MF model from a byte stream.
func (mf *MF) Unmarshal(r io.Reader) error {
	// read params
	var params Params
	if err := encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	mf.SetParams(params)
	// read dimensions
	var numUsers, numItems int32
	if err := binary.Read(r, binary.LittleEndian, &numUsers); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Read(r, binary.LittleEndian, &numItems); err != nil {
		return errors.Trace(err)
	}
	// read latent factors
	mf.UserFactor = newZeroMatrix(int(numUsers), mf.nFactors)
	mf.ItemFactor = newZeroMatrix(int(numItems), mf.nFactors)
	if err := encoding.ReadMatrix(r, mf.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.ReadMatrix(r, mf.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	// read predictable sets
	userPredictable, err := readBitSet(r)
	if err != nil {
		return errors.Trace(err)
	}
	itemPredictable, err := readBitSet(r)
	if err != nil {
		return errors.Trace(err)
	}
	mf.UserPredictable = userPredictable
	mf.ItemPredictable = itemPredictable
	return nil
}

// defaultNumCandidates is the number of sampled negatives per user during
// evaluation.
const defaultNumCandidates = 100

func newZeroMatrix(row, col int) [][]float32 {
	m := make([][]float32, row)
	for i := range m {
		m[i] = make([]float32, col)
	}
	return m
}

// predictableSets flags the users and items with at least one rating in the
// train set.
func predictableSets(trainSet *dataset.Matrix) (users, items *bitset.BitSet) {
	users = bitset.New(uint(trainSet.UserCount()))
	items = bitset.New(uint(trainSet.ItemCount()))
	trainSet.ForEach(func(user, item int32, _ float32) {
		users.Set(uint(user))
		items.Set(uint(item))
	})
	return
}

func writeBitSet(w io.Writer, b *bitset.BitSet) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return errors.Trace(err)
	}
	return encoding.WriteBytes(w, data)
}

func readBitSet(r io.Reader) (*bitset.BitSet, error) {
	data, err := encoding.ReadBytes(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	b := new(bitset.BitSet)
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, errors.Trace(err)
	}
	return b, nil
}
