package etl

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"workshop-functions/internal/db"
	"workshop-functions/internal/logging"
)

// Scripts are the DDL and seed statements the initializer applies.
type Scripts struct {
	CreateSource string
	SampleData   string
	CreateTarget string
	CreateViews  string
	CountTables  string
	CountViews   string
}

func DefaultScripts() Scripts {
	return Scripts{
		CreateSource: MustSQL("create_source_tables.sql"),
		SampleData:   MustSQL("insert_source_sample_data.sql"),
		CreateTarget: MustSQL("create_target_tables.sql"),
		CreateViews:  MustSQL("create_target_views.sql"),
		CountTables:  MustSQL("count_tables.sql"),
		CountViews:   MustSQL("count_views.sql"),
	}
}

type SourceInit struct {
	Status             string `json:"status"`
	TablesCreated      int    `json:"tables_created"`
	SampleDataInserted bool   `json:"sample_data_inserted"`
}

type TargetInit struct {
	Status        string `json:"status"`
	TablesCreated int    `json:"tables_created"`
	ViewsCreated  int    `json:"views_created"`
}

type InitResult struct {
	SourceDB SourceInit `json:"source_db"`
	TargetDB TargetInit `json:"target_db"`
}

type Initializer struct {
	source  db.Opener
	target  db.Opener
	scripts Scripts
	logger  *zap.Logger
}

func NewInitializer(source, target db.Opener, scripts Scripts, logger *zap.Logger) *Initializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Initializer{source: source, target: target, scripts: scripts, logger: logger}
}

// Run initializes the source database, then the target. Each runs in its own transaction.
func (i *Initializer) Run(ctx context.Context) (*InitResult, error) {
	log := logging.ForInvocation(ctx, i.logger)

	log.Info("initializing source database")
	src, err := i.InitSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("source database: %w", err)
	}

	log.Info("initializing target database")
	tgt, err := i.InitTarget(ctx)
	if err != nil {
		return nil, fmt.Errorf("target database: %w", err)
	}

	return &InitResult{SourceDB: *src, TargetDB: *tgt}, nil
}

// InitSource creates the source tables and seeds them only while customers is empty.
func (i *Initializer) InitSource(ctx context.Context) (*SourceInit, error) {
	pool, err := i.source(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	res := &SourceInit{Status: "success"}
	err = pool.WithTx(ctx, func(tx *sql.Tx) error {
		if err := execScript(ctx, tx, "create_source_tables", i.scripts.CreateSource); err != nil {
			return err
		}

		var customers int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&customers); err != nil {
			return fmt.Errorf("count customers: %w", err)
		}
		if customers == 0 {
			if err := execScript(ctx, tx, "insert_source_sample_data", i.scripts.SampleData); err != nil {
				return err
			}
			res.SampleDataInserted = true
			i.logger.Info("sample data inserted into source database")
		} else {
			i.logger.Info("source database already seeded", zap.Int("customers", customers))
		}

		return tx.QueryRowContext(ctx, i.scripts.CountTables).Scan(&res.TablesCreated)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (i *Initializer) InitTarget(ctx context.Context) (*TargetInit, error) {
	pool, err := i.target(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	res := &TargetInit{Status: "success"}
	err = pool.WithTx(ctx, func(tx *sql.Tx) error {
		if err := execScript(ctx, tx, "create_target_tables", i.scripts.CreateTarget); err != nil {
			return err
		}
		if err := execScript(ctx, tx, "create_target_views", i.scripts.CreateViews); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, i.scripts.CountTables).Scan(&res.TablesCreated); err != nil {
			return fmt.Errorf("count tables: %w", err)
		}
		if err := tx.QueryRowContext(ctx, i.scripts.CountViews).Scan(&res.ViewsCreated); err != nil {
			return fmt.Errorf("count views: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
