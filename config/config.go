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

// Package config loads and validates calibration pipeline configuration.
package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/gorse-io/calibrate/model"
)

// Config is the configuration of the calibration pipeline.
type Config struct {
	Recommend RecommendConfig          `mapstructure:"recommend"`
	Datasets  map[string]DatasetConfig `mapstructure:"datasets" validate:"dive"`
}

// RecommendConfig holds settings shared by every grid search.
type RecommendConfig struct {
	Parallel         bool    `mapstructure:"parallel"`
	EvaluationK      int     `mapstructure:"evaluation_k" validate:"gt=0"`
	EvaluationMetric string  `mapstructure:"evaluation_metric" validate:"oneof=ndcg precision recall"`
	TrainSize        float64 `mapstructure:"train_size" validate:"gt=0,lt=1"`
	ValidationSize   float64 `mapstructure:"validation_size" validate:"gt=0,lt=1"`
}

// DatasetConfig configures calibration on one dataset.
type DatasetConfig struct {
	GroundTruthModel string                   `mapstructure:"ground_truth_model" validate:"oneof=mf als"`
	GroundTruthPath  string                   `mapstructure:"ground_truth_path" validate:"required"`
	GroundTruthGrid  map[string][]interface{} `mapstructure:"ground_truth_grid" validate:"required"`
	RecommenderModel string                   `mapstructure:"recommender_model" validate:"oneof=mf als"`
	RecommenderPath  string                   `mapstructure:"recommender_path" validate:"required"`
	RecommenderGrid  map[string][]interface{} `mapstructure:"recommender_grid" validate:"required"`
}

// GetGroundTruthGrid converts the configured ground truth grid.
func (conf *DatasetConfig) GetGroundTruthGrid() model.ParamsGrid {
	return convertGrid(conf.GroundTruthGrid)
}

// GetRecommenderGrid converts the configured recommender grid.
func (conf *DatasetConfig) GetRecommenderGrid() model.ParamsGrid {
	return convertGrid(conf.RecommenderGrid)
}

func convertGrid(grid map[string][]interface{}) model.ParamsGrid {
	paramsGrid := make(model.ParamsGrid, len(grid))
	for name, values := range grid {
		paramsGrid[model.ParamName(name)] = values
	}
	return paramsGrid
}

func setDefault() {
	viper.SetDefault("recommend.parallel", true)
	viper.SetDefault("recommend.evaluation_k", 10)
	viper.SetDefault("recommend.evaluation_metric", "ndcg")
	viper.SetDefault("recommend.train_size", 0.7)
	viper.SetDefault("recommend.validation_size", 0.2)
}

// LoadConfig loads and validates the configuration from a TOML file.
func LoadConfig(path string) (*Config, error) {
	setDefault()
	viper.SetConfigType("toml")
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Trace(err)
	}
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate the configuration.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NotValidf("config: %v", err)
	}
	return nil
}
