package main

import (
	"context"
	"flag"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

var planNames = []string{
	"Unimed",
	"Bradesco Saúde",
	"SulAmérica",
	"Amil",
	"Hapvida",
	"NotreDame Intermédica",
	"Porto Seguro Saúde",
	"Golden Cross",
}

func main() {
	doctors := flag.Int("doctors", 50, "number of doctors to create")
	receptionists := flag.Int("receptionists", 5, "number of receptionists to create")
	patients := flag.Int("patients", 5000, "number of patients to create")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("prod", "info", "seed")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.ApplySchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	work := context.Background()

	if err := seedUsers(work, logger, pool, faker, appointment.RoleAdmin, 1); err != nil {
		logger.Fatal().Err(err).Msg("seed admins")
	}
	if err := seedUsers(work, logger, pool, faker, appointment.RoleReceptionist, *receptionists); err != nil {
		logger.Fatal().Err(err).Msg("seed receptionists")
	}
	if err := seedUsers(work, logger, pool, faker, appointment.RoleDoctor, *doctors); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPlans(work, logger, pool); err != nil {
		logger.Fatal().Err(err).Msg("seed insurance plans")
	}
	if err := seedPatients(work, logger, pool, faker, *patients); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedUsers(ctx context.Context, logger zerolog.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker, role appointment.Role, count int) error {
	logger.Info().Str("role", string(role)).Int("count", count).Msg("seeding users")

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			name := faker.Name()
			if role == appointment.RoleDoctor {
				name = "Dr. " + name
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, role, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), name, faker.Email(), string(role))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func seedPlans(ctx context.Context, logger zerolog.Logger, pool *pgxpool.Pool) error {
	logger.Info().Int("count", len(planNames)).Msg("seeding insurance plans")

	batch := &pgx.Batch{}
	for _, name := range planNames {
		batch.Queue(`
			INSERT INTO insurance_plans (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), name)
	}
	return pool.SendBatch(ctx, batch).Close()
}

func seedPatients(ctx context.Context, logger zerolog.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				_, err := tx.Exec(ctx, `
					INSERT INTO patients (id, name, email, phone, created_at, updated_at)
					VALUES ($1, $2, $3, $4, now(), now())
				`, uuid.New(), faker.Name(), faker.Email(), faker.Phone())
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}
