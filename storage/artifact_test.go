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

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/calibrate/dataset"
	"github.com/gorse-io/calibrate/model"
)

func TestSaveLoadModel(t *testing.T) {
	trainSet := dataset.NewMatrix(4, 4)
	for u := int32(0); u < 4; u++ {
		trainSet.Add(u, u, 5)
	}
	mf := model.NewMF(model.Params{model.NFactors: 2, model.NEpochs: 2, model.RandomState: 42})
	require.NoError(t, mf.Fit(context.Background(), trainSet))
	path := filepath.Join(t.TempDir(), "ground_truth", "mf.gob")
	require.NoError(t, SaveModel(path, mf))
	m, err := LoadModel(path)
	require.NoError(t, err)
	decoded, ok := m.(*model.MF)
	require.True(t, ok)
	assert.Equal(t, mf.UserFactor, decoded.UserFactor)
}

func TestLoadModel_NotFound(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "missing.gob"))
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestSaveLoadHyperparams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mf_hparams.txt")
	params := model.Params{
		model.NFactors: 16,
		model.Lr:       0.05,
	}
	fields := []Field{{Name: "ndcg", Value: "0.35"}, {Name: "model", Value: "mf"}}
	require.NoError(t, SaveHyperparams(path, params, fields))
	// two lines, parameter names in order followed by the extra fields
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "factors,lr,ndcg,model\n16,0.05,0.35,mf\n", string(data))
	loaded, err := LoadHyperparams(path)
	require.NoError(t, err)
	assert.Equal(t, []Field{
		{Name: "factors", Value: "16"},
		{Name: "lr", Value: "0.05"},
		{Name: "ndcg", Value: "0.35"},
		{Name: "model", Value: "mf"},
	}, loaded)
}

func TestLoadHyperparams_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.txt")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1\n"), 0o644))
	_, err := LoadHyperparams(path)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = LoadHyperparams(filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, errors.Is(err, errors.NotFound))
}
