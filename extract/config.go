package extract

import (
	"os"

	"github.com/siherrmann/retriever/model"
)

// NewRouterFromConfig registers the file, web and transcript sources.
// The transcript api key is read from the environment variable named in the config.
func NewRouterFromConfig(cfg model.ExtractConfig) *Router {
	transcriptKey := ""
	if cfg.TranscriptAPIKeyEnv != "" {
		transcriptKey = os.Getenv(cfg.TranscriptAPIKeyEnv)
	}

	return NewRouter().
		Register(model.ContentTypeFile, NewFileExtractor()).
		Register(model.ContentTypeWebArticle, NewWebExtractor(cfg.UserAgent, cfg.WebMaxLength)).
		Register(model.ContentTypeTranscript, NewTranscriptExtractor(cfg.TranscriptURL, transcriptKey))
}
