package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/julianstephens/redolog/internal/logger"
	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/checkpoint"
	"github.com/julianstephens/redolog/internal/redolog/metrics"
)

// Globals carries what every command needs. main binds it into kong so each
// command's Run receives it.
type Globals struct {
	Options redolog.Options
	Logger  logger.Logger
	Metrics *metrics.Registry
	Out     io.Writer
}

var ErrUnknownCheckpointStore = errors.New("cli: unknown checkpoint store")

// CheckpointFlags selects the checkpoint store a command reads or advances.
type CheckpointFlags struct {
	Checkpoints    string `help:"Checkpoint store (file, bolt, pg)" default:"file" enum:"file,bolt,pg" envvar:"REDOLOG_CHECKPOINTS"`
	CheckpointPath string `help:"Checkpoint file directory or bolt database path" envvar:"REDOLOG_CHECKPOINT_PATH"`
	PGURL          string `help:"PostgreSQL URL for the pg checkpoint store" name:"pg-url" envvar:"REDOLOG_PG_URL"`
}

// Open opens the selected store. File and bolt stores default to the log root.
func (f CheckpointFlags) Open(ctx context.Context, root string) (checkpoint.Store, error) {
	switch f.Checkpoints {
	case "", "file":
		dir := f.CheckpointPath
		if dir == "" {
			dir = root
		}
		return checkpoint.OpenFileStore(dir)
	case "bolt":
		path := f.CheckpointPath
		if path == "" {
			path = filepath.Join(root, "checkpoints.db")
		}
		return checkpoint.OpenBoltStore(path)
	case "pg":
		return checkpoint.NewPGStore(ctx, f.PGURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCheckpointStore, f.Checkpoints)
	}
}
