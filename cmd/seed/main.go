package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/database"
	"github.com/stemsi/examcore/internal/logger"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
	"github.com/stemsi/examcore/internal/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Create a class of students for a teacher and optionally assign an exam",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
	f := cmd.Flags()
	f.String("teacher", "", "Email of the teacher who owns the class (required)")
	f.String("class", "Demo Class", "Class name")
	f.IntP("students", "n", 30, "Number of students to create")
	f.String("password", "student123", "Password shared by all seeded students")
	f.String("domain", "students.example.com", "Email domain for seeded students")
	f.String("exam", "", "Exam ID to assign to the class")
	_ = cmd.MarkFlagRequired("teacher")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	teacherEmail, _ := f.GetString("teacher")
	className, _ := f.GetString("class")
	count, _ := f.GetInt("students")
	password, _ := f.GetString("password")
	domain, _ := f.GetString("domain")
	examFlag, _ := f.GetString("exam")

	if count < 1 {
		return errors.New("--students must be at least 1")
	}
	var examID uuid.UUID
	if examFlag != "" {
		id, err := uuid.Parse(examFlag)
		if err != nil {
			return fmt.Errorf("invalid --exam: %w", err)
		}
		examID = id
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	directory := repository.NewDirectoryRepository(pool)
	authService := service.NewAuthService(cfg, directory, nil, log)
	out := cmd.OutOrStdout()

	teacher, err := directory.GetUserByEmail(ctx, teacherEmail)
	if err != nil {
		return fmt.Errorf("find teacher %s: %w", teacherEmail, err)
	}
	if teacher.Role == model.RoleStudent {
		return fmt.Errorf("%s is a student and cannot own a class", teacherEmail)
	}

	class := &model.Class{Name: className, TeacherID: teacher.ID}
	if err := directory.CreateClass(ctx, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	fmt.Fprintf(out, "Using class %q (ID %d)\n", class.Name, class.ID)

	userIDs := make([]int, 0, count)
	created := 0
	for i := 1; i <= count; i++ {
		email := fmt.Sprintf("student%03d@%s", i, domain)
		u, err := authService.CreateUser(ctx, fmt.Sprintf("Student %03d", i), email, password, model.RoleStudent)
		if errors.Is(err, service.ErrEmailTaken) {
			u, err = directory.GetUserByEmail(ctx, email)
		} else if err == nil {
			created++
		}
		if err != nil {
			return fmt.Errorf("student %s: %w", email, err)
		}
		userIDs = append(userIDs, u.ID)

		if i%10 == 0 {
			fmt.Fprintf(out, "Prepared %d students...\n", i)
		}
	}

	if err := directory.AddMembers(ctx, class.ID, userIDs); err != nil {
		return fmt.Errorf("enrol students: %w", err)
	}

	if examID != uuid.Nil {
		if err := directory.AssignExam(ctx, class.ID, examID); err != nil {
			return fmt.Errorf("assign exam: %w", err)
		}
		fmt.Fprintf(out, "Assigned exam %s to the class\n", examID)
	}

	fmt.Fprintf(out, "\nSeed completed! %d new students, %d enrolled in %q.\n", created, len(userIDs), class.Name)
	return nil
}
