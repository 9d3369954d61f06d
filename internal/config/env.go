// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if one exists,
// trying the current directory then the user's home directory. It never
// overwrites a variable already set in the process environment. Modeled
// on the teacher's v2/config.LoadDotEnv search order, trimmed to the two
// locations this single-binary server actually runs from.
func LoadDotEnv() {
	if err := loadIfExists(".env"); err != nil {
		slog.Debug("config: .env load failed", "path", ".env", "error", err)
	}
	if home, err := os.UserHomeDir(); err == nil {
		if err := loadIfExists(filepath.Join(home, ".env")); err != nil {
			slog.Debug("config: .env load failed", "path", home, "error", err)
		}
	}
}

func loadIfExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Env holds the environment-sourced credentials of spec.md §6: one
// required API key and four optional per-source credentials.
type Env struct {
	OpenRouterAPIKey      string
	OpenAlexEmail         string
	PubMedAPIKey          string
	CoreAPIKey            string
	SemanticScholarAPIKey string
}

// LoadEnv reads Env from the process environment. OPENROUTER_API_KEY is
// required; its absence is reported so the HTTP layer can surface the 500
// spec.md §6 calls for ("absence yields a 500 with a human-readable
// message") instead of failing deep inside the LLM client.
func LoadEnv() (Env, error) {
	e := Env{
		OpenRouterAPIKey:      os.Getenv("OPENROUTER_API_KEY"),
		OpenAlexEmail:         os.Getenv("OPENALEX_EMAIL"),
		PubMedAPIKey:          os.Getenv("PUBMED_API_KEY"),
		CoreAPIKey:            os.Getenv("CORE_API_KEY"),
		SemanticScholarAPIKey: os.Getenv("SEMANTIC_SCHOLAR_API_KEY"),
	}
	if e.OpenRouterAPIKey == "" {
		return e, fmt.Errorf("config: OPENROUTER_API_KEY is not set")
	}
	return e, nil
}
