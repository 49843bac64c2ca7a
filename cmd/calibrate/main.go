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
package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gorse-io/calibrate/base/log"
	"github.com/gorse-io/calibrate/cmd/version"
	"github.com/gorse-io/calibrate/config"
	"github.com/gorse-io/calibrate/pipeline"
)

var calibrateCommand = &cobra.Command{
	Use:   "calibrate [datasets]",
	Short: "Calibrate recommender models against a learned ground truth.",
	Run: func(cmd *cobra.Command, args []string) {
		// Show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)

		// load config
		configPath, _ := cmd.PersistentFlags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}

		// run calibration for the requested datasets, or all configured ones
		names := args
		if len(names) == 0 {
			names = lo.Keys(conf.Datasets)
			sort.Strings(names)
		}
		seed, _ := cmd.PersistentFlags().GetInt64("seed")
		p := pipeline.New(conf, seed)
		ctx := context.Background()
		for _, name := range names {
			if err := p.GenerateRecommenders(ctx, name); err != nil {
				log.Logger().Fatal("failed to generate recommenders",
					zap.String("dataset", name), zap.Error(err))
			}
		}
	},
}

func init() {
	log.AddFlags(calibrateCommand.PersistentFlags())
	calibrateCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	calibrateCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	calibrateCommand.PersistentFlags().Int64("seed", 0, "seed of the random seed sequence")
	calibrateCommand.PersistentFlags().BoolP("version", "v", false, "calibrate version")
}

func main() {
	if err := calibrateCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
