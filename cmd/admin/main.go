package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/repository"
	"github.com/gurukul-lms/gurukul-api/internal/service"
	"github.com/gurukul-lms/gurukul-api/migrations"
	"github.com/gurukul-lms/gurukul-api/pkg/config"
	"github.com/gurukul-lms/gurukul-api/pkg/database"
	"github.com/gurukul-lms/gurukul-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg, "admin")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	cli := commandLine{
		migrate: func(ctx context.Context, command string) error {
			return database.Migrate(ctx, db, migrations.FS, ".", command)
		},
		users:   service.NewUserService(userRepo, nil, validator.New(), logr),
		finder:  userRepo,
		courses: service.NewCourseService(courseRepo, userRepo, nil, nil, logr),
		tokens: service.NewAuthService(logr, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			Issuer:            cfg.JWT.Issuer,
			Audience:          cfg.JWT.Audience,
		}),
		out: os.Stdout,
	}
	if err := cli.run(context.Background(), os.Args); err != nil {
		if err != errHelp {
			logr.Error("admin command failed", zap.Error(err))
		}
		os.Exit(1)
	}
}
