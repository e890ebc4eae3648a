package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/config"
	"github.com/hackgods/counseling-scheduling/internal/counseling"
	"github.com/hackgods/counseling-scheduling/internal/db"
	"github.com/hackgods/counseling-scheduling/internal/lock"
	"github.com/hackgods/counseling-scheduling/internal/logging"
)

const (
	firstProfessorID int64 = 1000
	firstStudentID   int64 = 2024000
)

var departments = []string{
	"Computer Science",
	"Mechanical Engineering",
	"Business Administration",
	"Psychology",
	"Mathematics",
	"English Literature",
	"Chemistry",
	"Architecture",
}

func main() {
	professors := flag.Int("professors", 40, "number of professors")
	students := flag.Int("students", 2000, "number of students")
	weeks := flag.Int("weeks", 2, "weeks of counseling slots to publish per professor")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "counseling-seed"})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := db.NewMigrator(pool, logger)
	if err != nil {
		logger.Fatal("migrator", zap.Error(err))
	}
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	_ = migrator.Close()

	faker := gofakeit.New(0)

	deptIDs, err := seedDepartments(ctx, pool)
	if err != nil {
		logger.Fatal("seed departments", zap.Error(err))
	}
	if err := seedPeople(ctx, pool, faker, "professors", firstProfessorID, *professors, deptIDs); err != nil {
		logger.Fatal("seed professors", zap.Error(err))
	}
	if err := seedPeople(ctx, pool, faker, "students", firstStudentID, *students, deptIDs); err != nil {
		logger.Fatal("seed students", zap.Error(err))
	}

	svc := counseling.NewService(counseling.NewPgStore(pool), lock.NewLocalLocker(), cfg, logger.Named("counseling"))
	created, err := seedSlots(ctx, svc, faker, cfg.Loc(), *professors, *weeks)
	if err != nil {
		logger.Fatal("seed slots", zap.Error(err))
	}

	logger.Info("seed complete",
		zap.Int("departments", len(deptIDs)),
		zap.Int("professors", *professors),
		zap.Int("students", *students),
		zap.Int("slots", created),
	)
}

func seedDepartments(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, len(departments))
	for _, name := range departments {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO departments (name)
			VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, name).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// seedPeople inserts count rows into table (professors or students) with sequential ids from firstID.
func seedPeople(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, table string, firstID int64, count int, deptIDs []int64) error {
	const batchSize = 500

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, email, department_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, table)

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		for i := offset; i < end; i++ {
			dept := deptIDs[faker.Number(0, len(deptIDs)-1)]
			if _, err := tx.Exec(ctx, query, firstID+int64(i), faker.Name(), faker.Email(), dept); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// seedSlots publishes a two-item weekly pattern for every professor, starting next Monday.
func seedSlots(ctx context.Context, svc *counseling.Service, faker *gofakeit.Faker, loc *time.Location, professors, weeks int) (int, error) {
	today := counseling.DateOf(time.Now(), loc)
	monday := today.AddDate(0, 0, (8-int(today.Weekday()))%7)
	if monday.Equal(today) {
		monday = monday.AddDate(0, 0, 7)
	}
	repeatEnd := monday.AddDate(0, 0, 7*weeks-1)

	total := 0
	for i := 0; i < professors; i++ {
		auth := counseling.AuthContext{ID: firstProfessorID + int64(i), Role: counseling.RoleProfessor}

		var items []counseling.WeeklyItem
		for j := 0; j < 2; j++ {
			hour := faker.Number(9, 17)
			items = append(items, counseling.WeeklyItem{
				DayOfWeek: time.Weekday(faker.Number(1, 5)),
				Start:     counseling.TimeOfDay{Hour: hour},
				End:       counseling.TimeOfDay{Hour: hour + 1},
			})
		}

		slots, err := svc.CreateWeeklyPattern(ctx, auth, counseling.WeeklyPattern{
			WeekStart: monday,
			RepeatEnd: repeatEnd,
			Items:     items,
		})
		if errors.Is(err, counseling.ErrNoSlotsGenerated) {
			continue
		}
		if err != nil {
			return total, fmt.Errorf("professor %d: %w", auth.ID, err)
		}
		total += len(slots)
	}
	return total, nil
}
