package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/horssit/pesitd/internal/cluster"
	clusterraft "github.com/horssit/pesitd/internal/cluster/raft"
	"github.com/horssit/pesitd/internal/fileio"
	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/journal/badger"
	journalpg "github.com/horssit/pesitd/internal/journal/postgres"
	"github.com/horssit/pesitd/internal/logicalfile"
	"github.com/horssit/pesitd/internal/partner"
	"github.com/horssit/pesitd/internal/secrets"
)

// BuildJournal constructs the configured journal backend. The returned
// closer, if non-nil, must be called on shutdown to release pooled
// connections or the embedded database handle.
func BuildJournal(ctx context.Context, cfg JournalConfig) (journal.Journal, func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		return journal.NewMemoryJournal(), nil, nil
	case "badger":
		store, err := badger.Open(cfg.Badger.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("config: opening badger journal: %w", err)
		}
		return store, store.Close, nil
	case "postgres":
		if err := journalpg.RunMigrations(ctx, cfg.Postgres.DSN, slog.Default()); err != nil {
			return nil, nil, fmt.Errorf("config: migrating journal schema: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("config: connecting journal database: %w", err)
		}
		return journalpg.New(pool), func() error { pool.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("config: unknown journal backend %q", cfg.Backend)
	}
}

// BuildPartnerStore constructs the configured partner directory backend.
func BuildPartnerStore(cfg PartnerStoreConfig, svc *secrets.Service) (partner.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		records := make([]*partner.Record, 0, len(cfg.Seed))
		now := time.Now()
		for _, s := range cfg.Seed {
			passwordRef := s.Password
			if passwordRef != "" && !secrets.IsEncrypted(passwordRef) && svc != nil {
				encrypted, err := svc.Encrypt(passwordRef)
				if err != nil {
					return nil, fmt.Errorf("config: encrypting seed password for partner %q: %w", s.ID, err)
				}
				passwordRef = encrypted
			}
			records = append(records, &partner.Record{
				ID:                     s.ID,
				DisplayName:            s.DisplayName,
				Enabled:                s.Enabled,
				AllowedAccess:          partner.AccessType(s.AllowedAccess),
				PasswordRef:            passwordRef,
				AllowedCIDRs:           s.AllowedCIDRs,
				MaxConcurrentTransfers: s.MaxConcurrentTransfers,
				CreatedAt:              now,
				UpdatedAt:              now,
			})
		}
		return partner.NewMemoryStore(records), nil
	case "postgres":
		db, err := openGORM(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("config: connecting partner database: %w", err)
		}
		return partner.NewGORMStore(db), nil
	default:
		return nil, fmt.Errorf("config: unknown partner store backend %q", cfg.Backend)
	}
}

// BuildLogicalFileStore constructs the configured logical-file directory
// backend.
func BuildLogicalFileStore(cfg LogicalFileStoreConfig) (logicalfile.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		records := make([]*logicalfile.Record, 0, len(cfg.Seed))
		now := time.Now()
		for _, s := range cfg.Seed {
			records = append(records, &logicalfile.Record{
				LogicalName:         s.LogicalName,
				FilenamePattern:     s.FilenamePattern,
				BackingRoot:         s.BackingRoot,
				DefaultFileType:     s.DefaultFileType,
				DefaultRecordFormat: s.DefaultRecordFormat,
				DefaultRecordLength: s.DefaultRecordLength,
				MaxEntitySize:       s.MaxEntitySize,
				Enabled:             s.Enabled,
				CreatedAt:           now,
				UpdatedAt:           now,
			})
		}
		return logicalfile.NewMemoryStore(records), nil
	case "postgres":
		db, err := openGORM(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("config: connecting logical file database: %w", err)
		}
		return logicalfile.NewGORMStore(db), nil
	default:
		return nil, fmt.Errorf("config: unknown logical file store backend %q", cfg.Backend)
	}
}

func openGORM(cfg PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// BuildSecrets constructs the secrets service used to decrypt partner
// passwords. A fixed salt is acceptable here: the passphrase itself is the
// secret, and rotating it is an explicit operator action (re-encrypting
// every stored password), not something this service does implicitly.
func BuildSecrets(cfg SecretsConfig) *secrets.Service {
	salt := []byte(cfg.Salt)
	if len(salt) == 0 {
		salt = []byte("pesitd-default-salt")
	}
	return secrets.New(cfg.Passphrase, salt, nil)
}

// BuildArchiver constructs the S3 archival sink, or returns (nil, nil) if
// archival is disabled.
func BuildArchiver(ctx context.Context, cfg ArchivalConfig, svc *secrets.Service) (*fileio.Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	secretKey := cfg.SecretAccessKey
	if secretKey != "" && secrets.IsEncrypted(secretKey) && svc != nil {
		decrypted, err := svc.Decrypt(secretKey)
		if err != nil {
			return nil, fmt.Errorf("config: decrypting archival secret access key: %w", err)
		}
		secretKey = decrypted
	}
	return fileio.NewArchiver(ctx, fileio.ArchiveConfig{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: secretKey,
		ForcePathStyle:  cfg.ForcePathStyle,
		WorkerCount:     cfg.WorkerCount,
	})
}

// BuildCluster constructs the configured cluster provider.
func BuildCluster(cfg ClusterConfig, nodeName string) (cluster.Provider, error) {
	switch cfg.Mode {
	case "", "standalone":
		return cluster.NewStandalone(nodeName), nil
	case "raft":
		members := make(map[uint64]string, len(cfg.Raft.Peers))
		for i, addr := range cfg.Raft.Peers {
			members[uint64(i+1)] = addr
		}
		return clusterraft.New(clusterraft.Config{
			NodeName:       nodeName,
			ReplicaID:      cfg.Raft.NodeID,
			RaftAddress:    cfg.Raft.ListenAddr,
			DataDir:        cfg.Raft.DataDir,
			InitialMembers: members,
		})
	default:
		return nil, fmt.Errorf("config: unknown cluster mode %q", cfg.Mode)
	}
}
