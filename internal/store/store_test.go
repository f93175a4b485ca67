package store_test

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/models"
	"github.com/kubev2v/flowharness/internal/store"
	"github.com/kubev2v/flowharness/internal/store/migrations"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
	"github.com/kubev2v/flowharness/pkg/filter"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		db    *sql.DB
		s     *store.Store
		start time.Time
	)

	newRun := func(offset time.Duration) *models.Run {
		return &models.Run{
			ID:         uuid.New(),
			StartedAt:  start.Add(offset),
			Engine:     "podman",
			AgentImage: "apacheminificpp:behave",
			Tags:       "@CORE",
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		start = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		var err error
		db, err = store.NewDB(store.InMemory)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrations.Run(ctx, db)).To(Succeed())

		s = store.NewStore(db)
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("RunStore", func() {
		// Given a started run
		// When it is finished
		// Then the end time and status should be stored
		It("should record the end of a run", func() {
			// Arrange
			run := newRun(0)
			Expect(s.Runs().Create(ctx, run)).To(Succeed())

			// Act
			err := s.Runs().Finish(ctx, run.ID, start.Add(time.Minute), 1)

			// Assert
			Expect(err).NotTo(HaveOccurred())
			got, err := s.Runs().Get(ctx, run.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(1))
			Expect(got.FinishedAt).NotTo(BeNil())
			Expect(got.FinishedAt.Sub(got.StartedAt)).To(Equal(time.Minute))
			Expect(got.Tags).To(Equal("@CORE"))
		})

		It("should list runs newest first", func() {
			older, newer := newRun(0), newRun(time.Hour)
			Expect(s.Runs().Create(ctx, older)).To(Succeed())
			Expect(s.Runs().Create(ctx, newer)).To(Succeed())

			runs, err := s.Runs().List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(2))
			Expect(runs[0].ID).To(Equal(newer.ID))
			Expect(runs[0].FinishedAt).To(BeNil())

			latest, err := s.Runs().Latest(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.ID).To(Equal(newer.ID))

			runs, err = s.Runs().List(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))
		})

		It("should report unknown runs", func() {
			_, err := s.Runs().Get(ctx, uuid.New())
			Expect(srvErrors.IsRunNotFoundError(err)).To(BeTrue())

			_, err = s.Runs().Latest(ctx)
			Expect(srvErrors.IsRunNotFoundError(err)).To(BeTrue())

			err = s.Runs().Finish(ctx, uuid.New(), start, 0)
			Expect(srvErrors.IsRunNotFoundError(err)).To(BeTrue())
		})
	})

	Describe("ScenarioStore", func() {
		var run *models.Run

		BeforeEach(func() {
			run = newRun(0)
			Expect(s.Runs().Create(ctx, run)).To(Succeed())
		})

		result := func(id string, status models.ScenarioStatus, offset time.Duration) models.ScenarioResult {
			return models.ScenarioResult{
				ID:         id,
				RunID:      run.ID,
				Feature:    "core_functionality.feature",
				Name:       "scenario " + id,
				Status:     status,
				StartedAt:  start.Add(offset),
				FinishedAt: start.Add(offset + 30*time.Second),
			}
		}

		It("should list scenarios in execution order", func() {
			Expect(s.Scenarios().Save(ctx, result("core_functionality-2", models.ScenarioStatusFailed, time.Minute))).To(Succeed())
			Expect(s.Scenarios().Save(ctx, result("core_functionality-1", models.ScenarioStatusPassed, 0))).To(Succeed())

			results, err := s.Scenarios().ListByRun(ctx, run.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("core_functionality-1"))
			Expect(results[0].Duration()).To(Equal(30 * time.Second))
			Expect(results[1].Status).To(Equal(models.ScenarioStatusFailed))
		})

		// Given a scenario saved as failed
		// When it is saved again as passed
		// Then only the last outcome should be kept
		It("should replace an earlier outcome", func() {
			// Arrange
			failed := result("core_functionality-1", models.ScenarioStatusFailed, 0)
			failed.Error = "timed out"
			Expect(s.Scenarios().Save(ctx, failed)).To(Succeed())

			// Act
			err := s.Scenarios().Save(ctx, result("core_functionality-1", models.ScenarioStatusPassed, 0))

			// Assert
			Expect(err).NotTo(HaveOccurred())
			counts, err := s.Scenarios().CountByStatus(ctx, run.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal(map[models.ScenarioStatus]int{models.ScenarioStatusPassed: 1}))
		})

		Context("filtered", func() {
			BeforeEach(func() {
				slow := result("kafka-1", models.ScenarioStatusFailed, time.Minute)
				slow.Feature = "kafka.feature"
				slow.Error = "condition timed out after 1m0s"
				slow.FinishedAt = slow.StartedAt.Add(3 * time.Minute)
				Expect(s.Scenarios().Save(ctx, slow)).To(Succeed())
				Expect(s.Scenarios().Save(ctx, result("core_functionality-1", models.ScenarioStatusPassed, 0))).To(Succeed())
				Expect(s.Scenarios().Save(ctx, result("core_functionality-2", models.ScenarioStatusFailed, 5*time.Minute))).To(Succeed())
			})

			ids := func(expression string) []string {
				expr, err := filter.Parse([]byte(expression))
				Expect(err).NotTo(HaveOccurred())

				results, err := s.Scenarios().ListByRun(ctx, run.ID, sq.Expr(expr.Sql()))
				Expect(err).NotTo(HaveOccurred())

				out := make([]string, 0, len(results))
				for _, r := range results {
					out = append(out, r.ID)
				}
				return out
			}

			It("should narrow by status", func() {
				Expect(ids("status = 'failed'")).To(Equal([]string{"kafka-1", "core_functionality-2"}))
			})

			It("should narrow by regex on the feature", func() {
				Expect(ids("feature ~ /^core/")).To(Equal([]string{"core_functionality-1", "core_functionality-2"}))
				Expect(ids("feature !~ /^core/")).To(Equal([]string{"kafka-1"}))
			})

			It("should narrow by duration", func() {
				Expect(ids("duration > 2m")).To(Equal([]string{"kafka-1"}))
				Expect(ids("duration <= 30s")).To(Equal([]string{"core_functionality-1", "core_functionality-2"}))
			})

			It("should narrow by a set of ids", func() {
				Expect(ids("id in ('kafka-1', 'core_functionality-1')")).To(Equal([]string{"core_functionality-1", "kafka-1"}))
				Expect(ids("status in ('skipped')")).To(BeEmpty())
			})

			It("should combine expressions", func() {
				Expect(ids("status = 'failed' and (error ~ /timed out/ or scenario = 'nothing')")).To(Equal([]string{"kafka-1"}))
				Expect(ids("status = 'passed' or duration > 1h")).To(Equal([]string{"core_functionality-1"}))
			})
		})
	})

	Describe("LogStore", func() {
		It("should keep the last logs per container", func() {
			runID := uuid.New()
			save := func(container, logs string) {
				Expect(s.Logs().Save(ctx, models.ContainerLog{RunID: runID, ScenarioID: "feature-1", Container: container, Logs: logs})).To(Succeed())
			}
			save("nifi-feature-1", "Started Application in 20 seconds")
			save("minifi-primary-feature-1", "first")
			save("minifi-primary-feature-1", "Starting Flow Controller")

			logs, err := s.Logs().ListByScenario(ctx, runID, "feature-1")

			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(HaveLen(2))
			Expect(logs[0].Container).To(Equal("minifi-primary-feature-1"))
			Expect(logs[0].Logs).To(Equal("Starting Flow Controller"))

			other, err := s.Logs().ListByScenario(ctx, runID, "feature-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(other).To(BeEmpty())
		})
	})
})
