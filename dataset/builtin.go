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
	"archive/zip"
	"bufio"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/gorse-io/calibrate/base/log"
)

type builtInDataset struct {
	url    string
	path   string
	sep    string
	header bool
}

var builtInDatasets = map[string]builtInDataset{
	// MovieLens: https://grouplens.org/datasets/movielens/
	"ml-100k": {
		url:  "https://cdn.gorse.io/datasets/ml-100k.zip",
		path: "ml-100k/u.data",
		sep:  "\t",
	},
	"ml-1m": {
		url:  "https://cdn.gorse.io/datasets/ml-1m.zip",
		path: "ml-1m/ratings.dat",
		sep:  "::",
	},
	"filmtrust": {
		url:  "https://cdn.gorse.io/datasets/filmtrust.zip",
		path: "filmtrust/ratings.txt",
		sep:  " ",
	},
	"epinions": {
		url:    "https://cdn.gorse.io/datasets/epinions.zip",
		path:   "epinions/ratings_data.txt",
		sep:    " ",
		header: true,
	},
}

var (
	datasetDir string
	tempDir    string
)

func init() {
	usr, err := user.Current()
	if err != nil {
		log.Logger().Fatal("failed to get user directory", zap.Error(err))
	}
	datasetDir = filepath.Join(usr.HomeDir, ".calibrate", "dataset")
	tempDir = filepath.Join(usr.HomeDir, ".calibrate", "temp")
}

// Retrievable reports whether a dataset can be downloaded by name.
func Retrievable(name string) bool {
	_, exist := builtInDatasets[name]
	return exist
}

// GetDataset downloads a built-in dataset if absent and loads it.
func GetDataset(name string) (*Matrix, error) {
	meta, exist := builtInDatasets[name]
	if !exist {
		return nil, errors.NotImplementedf("built-in dataset %s", name)
	}
	if _, err := os.Stat(filepath.Join(datasetDir, meta.path)); os.IsNotExist(err) {
		zipFileName, err := downloadFromUrl(meta.url, tempDir)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if _, err := unzip(zipFileName, datasetDir); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return LoadFromCSV(filepath.Join(datasetDir, meta.path), meta.sep, meta.header)
}

// LoadFromCSV loads a rating matrix from a user-item-rating file. User and
// item identifiers are mapped to dense indices in order of first appearance.
func LoadFromCSV(path, sep string, hasHeader bool) (*Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	m := NewMatrix(0, 0)
	users := make(map[string]int32)
	items := make(map[string]int32)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if hasHeader {
			hasHeader = false
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) < 3 {
			continue
		}
		value, err := strconv.ParseFloat(fields[2], 32)
		if err != nil {
			return nil, errors.Trace(err)
		}
		userIndex, exist := users[fields[0]]
		if !exist {
			userIndex = int32(len(users))
			users[fields[0]] = userIndex
		}
		itemIndex, exist := items[fields[1]]
		if !exist {
			itemIndex = int32(len(items))
			items[fields[1]] = itemIndex
		}
		m.Add(userIndex, itemIndex, float32(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return m, nil
}

// downloadFromUrl downloads file from URL.
func downloadFromUrl(src, dst string) (string, error) {
	log.Logger().Info("download dataset", zap.String("source", src), zap.String("destination", dst))
	tokens := strings.Split(src, "/")
	fileName := filepath.Join(dst, tokens[len(tokens)-1])
	if err := os.MkdirAll(filepath.Dir(fileName), os.ModePerm); err != nil {
		return fileName, errors.Trace(err)
	}
	output, err := os.Create(fileName)
	if err != nil {
		return fileName, errors.Trace(err)
	}
	defer output.Close()
	response, err := http.Get(src)
	if err != nil {
		return fileName, errors.Trace(err)
	}
	defer response.Body.Close()
	bar := progressbar.DefaultBytes(response.ContentLength, filepath.Base(fileName))
	_, err = io.Copy(io.MultiWriter(output, bar), response.Body)
	if err != nil {
		return fileName, errors.Trace(err)
	}
	return fileName, nil
}

// unzip zip file.
func unzip(src, dst string) ([]string, error) {
	var fileNames []string
	r, err := zip.OpenReader(src)
	if err != nil {
		return fileNames, errors.Trace(err)
	}
	defer r.Close()
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return fileNames, errors.Trace(err)
		}
		filePath := filepath.Join(dst, f.Name)
		// check for ZipSlip
		if !strings.HasPrefix(filePath, filepath.Clean(dst)+string(os.PathSeparator)) {
			return fileNames, errors.Errorf("%s: illegal file path", filePath)
		}
		fileNames = append(fileNames, filePath)
		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(filePath, os.ModePerm); err != nil {
				return fileNames, errors.Trace(err)
			}
		} else {
			if err = os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
				return fileNames, errors.Trace(err)
			}
			outFile, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
			if err != nil {
				return fileNames, errors.Trace(err)
			}
			_, err = io.Copy(outFile, rc)
			if err != nil {
				return nil, errors.Trace(err)
			}
			if err = outFile.Close(); err != nil {
				return nil, errors.Trace(err)
			}
		}
		if err = rc.Close(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return fileNames, nil
}
