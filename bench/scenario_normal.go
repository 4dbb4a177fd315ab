package bench

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/isucon/isucandar"
	"github.com/isucon/isucandar/worker"
	"github.com/samber/lo"
)

func (s *Scenario) MusicianWorker(step *isucandar.BenchmarkStep, p int32) (*worker.Worker, error) {
	w, err := worker.NewWorker(func(ctx context.Context, _ int) {
		s.MusicianScenario(ctx, step)
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

// 登録済みの演奏者
func (s *Scenario) MusicianScenario(ctx context.Context, step *isucandar.BenchmarkStep) error {
	report := timeReporter("musician")
	defer report()

	m, release := s.ChoiceMusician(ctx)
	defer release()
	if m == nil {
		return nil
	}
	ag, err := m.GetAgent(s.Option)
	if err != nil {
		return err
	}
	{
		// ログイン
		res, err := LoginAction(ctx, m, ag)
		v := ValidateResponse("ログイン", step, res, err, WithRedirect("/"))
		if v.IsEmpty() {
			step.AddScore(ScoreLogin)
		} else {
			return v
		}
	}
	{
		res, err := GetAddPieceAction(ctx, ag)
		v := ValidateResponse("作品追加ページ", step, res, err,
			WithStatusCode(http.StatusOK),
			WithCacheControlPrivate(),
		)
		if v.IsEmpty() {
			step.AddScore(ScoreAddPiecePage)
		} else {
			return v
		}
	}
	piece := RandomPiece()
	{
		res, err := AddPieceAction(ctx, piece, ag)
		v := ValidateResponse("作品追加", step, res, err,
			WithStatusCode(http.StatusFound),
			func(r *http.Response, _ []byte) error {
				id, ok := ProfileIDFromLocation(r.Header.Get("Location"))
				if !ok {
					return fmt.Errorf("作品追加後のリダイレクト先が不正です: %q", r.Header.Get("Location"))
				}
				if known := m.GetID(); known != 0 && known != id {
					return fmt.Errorf("演奏者のIDが一致しません %d != %d", known, id)
				}
				m.SetID(id)
				return nil
			},
		)
		if v.IsEmpty() {
			step.AddScore(ScoreAddPiece)
		} else {
			return v
		}
	}

	var pieceIDs []int64
	{
		res, err := GetOwnProfileAction(ctx, ag)
		v := ValidateResponse("自分のプロフィール", step, res, err,
			WithStatusCode(http.StatusOK),
			WithCacheControlPrivate(),
			WithBodyContains("Piece added successfully!"),
			WithBodyContains(m.Username),
			WithBody(func(body string) error {
				pieceIDs = DeletablePieceIDs(body)
				if len(pieceIDs) == 0 {
					return fmt.Errorf("追加した作品が表示されていません")
				}
				return nil
			}),
		)
		if v.IsEmpty() {
			step.AddScore(ScoreOwnProfile)
		} else {
			return v
		}
	}
	// 作品が増えすぎないように確率で削除する
	if len(pieceIDs) > 3 || rand.Intn(100) < 30 {
		id := lo.Sample(pieceIDs)
		res, err := DeletePieceAction(ctx, id, ag)
		v := ValidateResponse("作品削除", step, res, err, WithRedirect("/own_profile"))
		if v.IsEmpty() {
			step.AddScore(ScoreDeletePiece)
		} else {
			return v
		}
	}
	if rand.Intn(100) < 20 {
		m.Bio = "Updated " + RandomString(12)
		res, err := EditProfileAction(ctx, m, "", ag)
		v := ValidateResponse("プロフィール編集", step, res, err,
			WithRedirect("/profile/"+strconv.FormatInt(m.GetID(), 10)),
		)
		if v.IsEmpty() {
			step.AddScore(ScoreEditProfile)
		} else {
			return v
		}
	}
	{
		res, err := GetProfileAction(ctx, m.GetID(), ag)
		v := ValidateResponse("公開プロフィール", step, res, err,
			WithStatusCode(http.StatusOK),
			WithBodyContains(m.Bio),
			WithBodyNotContains("/delete_piece/"),
		)
		if v.IsEmpty() {
			step.AddScore(ScoreProfile)
		} else {
			return v
		}
	}
	{
		// ログアウト
		res, err := LogoutAction(ctx, ag)
		v := ValidateResponse("ログアウト", step, res, err, WithRedirect("/"))
		if v.IsEmpty() {
			step.AddScore(ScoreLogout)
		} else {
			return v
		}
	}
	return nil
}

func (s *Scenario) NewcomerWorker(step *isucandar.BenchmarkStep, p int32) (*worker.Worker, error) {
	w, err := worker.NewWorker(func(ctx context.Context, _ int) {
		s.NewcomerScenario(ctx, step)
	},
		worker.WithInfinityLoop(),
		worker.WithUnlimitedParallelism(),
	)
	if err != nil {
		return nil, err
	}
	w.SetParallelism(p)
	return w, nil
}

// 新規登録してプールに加わる演奏者
func (s *Scenario) NewcomerScenario(ctx context.Context, step *isucandar.BenchmarkStep) error {
	report := timeReporter("newcomer")
	defer report()

	ag, err := s.Option.NewAgent(false)
	if err != nil {
		return err
	}
	m, res, err := RegisterAction(ctx, ag)
	v := ValidateResponse("新規演奏者登録", step, res, err, WithRedirect("/login"))
	if v.IsEmpty() {
		step.AddScore(ScoreRegister)
	} else {
		return v
	}
	m.Agent = ag
	s.Musicians.Add(m)
	return nil
}
