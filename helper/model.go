package helper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
)

// DefaultModelDir is used if no model directory is configured.
const DefaultModelDir = "./models"

// ModelPath returns the local directory of a model, "org/name" is stored as "org_name".
func ModelPath(modelDir string, modelName string) string {
	if modelDir == "" {
		modelDir = DefaultModelDir
	}
	return filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
}

// PrepareModel returns the local path of the model and downloads it from huggingface first if it is missing.
// onnxFilePath selects the onnx file if the repository holds more than one.
func PrepareModel(modelDir string, modelName string, onnxFilePath string) (string, error) {
	if strings.TrimSpace(modelName) == "" {
		return "", fmt.Errorf("model name is empty")
	}
	if modelDir == "" {
		modelDir = DefaultModelDir
	}

	modelPath := ModelPath(modelDir, modelName)
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check model directory: %w", err)
	}

	if err := os.MkdirAll(modelDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	downloadOptions := hugot.NewDownloadOptions()
	if onnxFilePath != "" {
		downloadOptions.OnnxFilePath = onnxFilePath
	}
	downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model %s: %w", modelName, err)
	}
	return downloadedPath, nil
}
