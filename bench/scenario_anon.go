package bench

import (
	"context"
	"fmt"
	"net/http"

	"github.com/isucon/isucandar"
	"github.com/isucon/isucandar/worker"
	"github.com/samber/lo"
)

// ログインしないユーザーのシナリオ
func (s *Scenario) AnonWorker(step *isucandar.BenchmarkStep, p int32) (*worker.Worker, error) {
	w, err := worker.NewWorker(func(ctx context.Context, _ int) {
		s.AnonScenario(ctx, step)
	},
		// 無限回繰り返す
		worker.WithInfinityLoop(),
		worker.WithUnlimitedParallelism(),
	)
	if err != nil {
		return nil, err
	}
	w.SetParallelism(p)
	return w, nil
}

var searchQueries = []string{"a", "e", "musician", "rin", "sato", "alice", "ito", "o"}

// 匿名User
func (s *Scenario) AnonScenario(ctx context.Context, step *isucandar.BenchmarkStep) error {
	report := timeReporter("anonymous")
	defer report()

	ag, err := s.Option.NewAgent(false)
	if err != nil {
		return err
	}
	{
		res, err := GetRootAction(ctx, ag)
		v := ValidateResponse("トップページ(非ログイン)", step, res, err,
			WithStatusCode(http.StatusOK),
			WithCacheControlPrivate(),
		)
		if v.IsEmpty() {
			step.AddScore(ScoreGETRoot)
		} else {
			return v
		}
	}

	var profileIDs []int64
	{
		res, err := SearchAction(ctx, lo.Sample(searchQueries), ag)
		v := ValidateResponse("演奏者検索(非ログイン)", step, res, err,
			WithStatusCode(http.StatusOK),
			WithBody(func(body string) error {
				profileIDs = ProfileIDs(body)
				if len(profileIDs) > 50 {
					return fmt.Errorf("検索結果が50件を超えています %d", len(profileIDs))
				}
				return nil
			}),
		)
		if v.IsEmpty() {
			step.AddScore(ScoreSearch)
		} else {
			return v
		}
	}

	for _, id := range lo.Samples(profileIDs, 3) {
		res, err := GetProfileAction(ctx, id, ag)
		v := ValidateResponse("公開プロフィール(非ログイン)", step, res, err,
			WithStatusCode(http.StatusOK),
			WithBodyNotContains("/delete_piece/"),
		)
		if v.IsEmpty() {
			step.AddScore(ScoreProfile)
		} else {
			return v
		}
	}
	return nil
}
