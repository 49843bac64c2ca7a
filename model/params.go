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
	"reflect"
	"sort"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gorse-io/calibrate/base/log"
)

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	NFactors    ParamName = "factors"        // number of latent factors
	Reg         ParamName = "regularization" // regularization strength
	Alpha       ParamName = "alpha"          // confidence weight for implicit feedback
	Lr          ParamName = "lr"             // learning rate
	NEpochs     ParamName = "n_epochs"       // number of epochs
	InitStdDev  ParamName = "init_std_dev"   // standard deviation of gaussian initial parameters
	RandomState ParamName = "random_state"   // random state (seed)
)

// Params stores hyper-parameters for a model. It is a map between names and
// values, so a configuration is always carried with its names attached.
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params)
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// Overwrite returns the union of both parameter sets, with params winning.
func (parameters Params) Overwrite(params Params) Params {
	merged := make(Params)
	for k, v := range parameters {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// Names returns parameter names in lexicographic order.
func (parameters Params) Names() []ParamName {
	names := lo.Keys(parameters)
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// GetInt gets an integer parameter by name. Returns _default if not exists or
// type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case float64:
			return int(val)
		default:
			log.Logger().Error("failed to get int parameter",
				zap.String("name", string(name)),
				zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetInt64 gets an int64 parameter by name. Returns _default if not exists or
// type doesn't match.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("failed to get int64 parameter",
				zap.String("name", string(name)),
				zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetFloat32 gets a float32 parameter by name. Returns _default if not exists
// or type doesn't match.
func (parameters Params) GetFloat32(name ParamName, _default float32) float32 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float32:
			return val
		case float64:
			return float32(val)
		case int:
			return float32(val)
		case int64:
			return float32(val)
		default:
			log.Logger().Error("failed to get float32 parameter",
				zap.String("name", string(name)),
				zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetString gets a string parameter. Returns _default if not exists or type
// doesn't match.
func (parameters Params) GetString(name ParamName, _default string) string {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case string:
			return val
		default:
			log.Logger().Error("failed to get string parameter",
				zap.String("name", string(name)),
				zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// ParamsGrid contains candidate values for grid search.
type ParamsGrid map[ParamName][]interface{}

func (grid ParamsGrid) Len() int {
	return len(grid)
}

// Copy the grid, sharing candidate slices.
func (grid ParamsGrid) Copy() ParamsGrid {
	newGrid := make(ParamsGrid)
	for name, values := range grid {
		newGrid[name] = values
	}
	return newGrid
}

// Names returns parameter names in lexicographic order, so that enumeration
// is deterministic regardless of map iteration order.
func (grid ParamsGrid) Names() []ParamName {
	names := lo.Keys(grid)
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// NumCombinations returns the number of combinations in the grid.
func (grid ParamsGrid) NumCombinations() int {
	count := 1
	for _, values := range grid {
		count *= len(values)
	}
	return count
}

// Enumerate produces the full cross-product of the grid as named parameter
// sets, in nested-loop order over Names. A parameter with no candidate values
// makes the whole grid empty and is rejected as a configuration error.
func (grid ParamsGrid) Enumerate() ([]Params, error) {
	names := grid.Names()
	for _, name := range names {
		if len(grid[name]) == 0 {
			return nil, errors.NotValidf("empty candidate values for parameter %q", name)
		}
	}
	combinations := make([]Params, 0, grid.NumCombinations())
	var dfs func(deep int, params Params)
	dfs = func(deep int, params Params) {
		if deep == len(names) {
			combinations = append(combinations, params.Copy())
			return
		}
		name := names[deep]
		for _, val := range grid[name] {
			params[name] = val
			dfs(deep+1, params)
		}
	}
	dfs(0, make(Params))
	return combinations, nil
}
