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

// Package storage persists fitted models and their hyper-parameters on the
// local filesystem.
package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gorse-io/calibrate/base/log"
	"github.com/gorse-io/calibrate/model"
)

// Field is one extra column of a hyper-parameter artifact, such as a metric
// value or the model name.
type Field struct {
	Name  string
	Value string
}

// SaveModel writes a model to path, creating parent directories as needed.
func SaveModel(path string, m model.Model) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Trace(err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := model.MarshalModel(w, m); err != nil {
		return errors.Trace(err)
	}
	if err := w.Flush(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("save model", zap.String("path", path))
	return nil
}

// LoadModel reads a model written by SaveModel. A missing file is reported
// as a not-found error so that callers can fall back to retraining.
func LoadModel(path string) (model.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("model file %s", path)
		}
		return nil, errors.Trace(err)
	}
	defer f.Close()
	m, err := model.UnmarshalModel(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load model", zap.String("path", path))
	return m, nil
}

// SaveHyperparams writes a two-line artifact next to a saved model: the first
// line holds column names and the second their values. Parameter columns come
// first in name order, followed by the extra fields in the given order.
func SaveHyperparams(path string, params model.Params, fields []Field) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Trace(err)
	}
	names := make([]string, 0, len(params)+len(fields))
	values := make([]string, 0, len(params)+len(fields))
	for _, name := range params.Names() {
		names = append(names, string(name))
		values = append(values, fmt.Sprint(params[name]))
	}
	for _, field := range fields {
		names = append(names, field.Name)
		values = append(values, field.Value)
	}
	content := strings.Join(names, ",") + "\n" + strings.Join(values, ",") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("save hyper-parameters", zap.String("path", path))
	return nil
}

// LoadHyperparams reads an artifact written by SaveHyperparams. All values
// come back as strings, in file order.
func LoadHyperparams(path string) ([]Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("hyper-parameter file %s", path)
		}
		return nil, errors.Trace(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		return nil, errors.NotValidf("hyper-parameter file %s with %d lines", path, len(lines))
	}
	names := strings.Split(lines[0], ",")
	values := strings.Split(lines[1], ",")
	if len(names) != len(values) {
		return nil, errors.NotValidf("hyper-parameter file %s with mismatched columns", path)
	}
	fields := make([]Field, len(names))
	for i := range names {
		fields[i] = Field{Name: names[i], Value: values[i]}
	}
	return fields, nil
}
