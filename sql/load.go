package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"

	"github.com/siherrmann/retriever/model"
)

//go:embed init.sql
var initSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed documents.sql
var documentsSQL string

// Script is an embedded sql file and the functions it has to define.
type Script struct {
	Name      string
	SQL       string
	Functions []string
}

var (
	// ChunksScript holds the vector index functions.
	ChunksScript = Script{
		Name: "chunks",
		SQL:  chunksSQL,
		Functions: []string{
			"init_chunks",
			"insert_chunk",
			"select_chunks_by_document",
			"select_chunks_by_similarity",
			"select_chunk_stats",
			"delete_chunks_by_document",
			"clear_chunks",
		},
	}

	// DocumentsScript holds the document metadata functions.
	DocumentsScript = Script{
		Name: "documents",
		SQL:  documentsSQL,
		Functions: []string{
			"init_documents",
			"insert_document",
			"select_document",
			"select_all_documents",
			"update_document_index_state",
			"delete_document",
		},
	}
)

// Scripts lists all scripts in load order.
func Scripts() []Script {
	return []Script{DocumentsScript, ChunksScript}
}

// Init creates the pgvector extension.
func Init(db *sql.DB) error {
	if _, err := db.Exec(initSQL); err != nil {
		return fmt.Errorf("%w: error creating extensions: %w", model.ErrStore, err)
	}
	return nil
}

// LoadChunksSql loads the vector index functions.
func LoadChunksSql(db *sql.DB, force bool) error {
	return Load(db, ChunksScript, force)
}

// LoadDocumentsSql loads the document metadata functions.
func LoadDocumentsSql(db *sql.DB, force bool) error {
	return Load(db, DocumentsScript, force)
}

// LoadAllSql loads every script.
func LoadAllSql(db *sql.DB, force bool) error {
	for _, script := range Scripts() {
		if err := Load(db, script, force); err != nil {
			return err
		}
	}
	return nil
}

// Load executes the script unless all of its functions exist already.
// With force the script is always executed (CREATE OR REPLACE).
func Load(db *sql.DB, script Script, force bool) error {
	if !force {
		missing, err := missingFunctions(db, script.Functions)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			return nil
		}
	}

	if _, err := db.Exec(script.SQL); err != nil {
		return fmt.Errorf("%w: error executing %s sql: %w", model.ErrStore, script.Name, err)
	}

	missing, err := missingFunctions(db, script.Functions)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s sql did not create functions %v", model.ErrStore, script.Name, missing)
	}

	log.Printf("Loaded %s sql functions", script.Name)
	return nil
}

// missingFunctions returns the functions not present in pg_proc.
func missingFunctions(db *sql.DB, functions []string) ([]string, error) {
	missing := []string{}
	for _, f := range functions {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`, f).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("%w: error checking function %s: %w", model.ErrStore, f, err)
		}
		if !exists {
			missing = append(missing, f)
		}
	}
	return missing, nil
}
