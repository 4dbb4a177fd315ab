package bench

import (
	"context"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/isucon/isucandar"
	"github.com/isucon/isucandar/failure"
	"github.com/isucon/isucandar/score"
	"github.com/isucon/isucandar/worker"
)

var (
	Debug     = false
	MaxErrors = 30
)

const (
	ErrCannotNewAgent failure.StringCode = "agent"
	ErrInvalidRequest failure.StringCode = "request"
)

// シナリオで発生するスコアのタグ
const (
	ScoreGETRoot      score.ScoreTag = "GET /"
	ScoreSearch       score.ScoreTag = "GET /?search="
	ScoreRegister     score.ScoreTag = "POST /register"
	ScoreLogin        score.ScoreTag = "POST /login"
	ScoreLogout       score.ScoreTag = "GET /logout"
	ScoreOwnProfile   score.ScoreTag = "GET /own_profile"
	ScoreProfile      score.ScoreTag = "GET /profile/{}"
	ScoreAddPiece     score.ScoreTag = "POST /add_piece"
	ScoreDeletePiece  score.ScoreTag = "POST /delete_piece/{}"
	ScoreEditProfile  score.ScoreTag = "POST /edit_profile"
	ScoreAddPiecePage score.ScoreTag = "GET /add_piece"
)

// タグごとの得点
var ScoreWeights = map[score.ScoreTag]int64{
	ScoreGETRoot:      1,
	ScoreSearch:       2,
	ScoreRegister:     1,
	ScoreLogin:        1,
	ScoreLogout:       1,
	ScoreOwnProfile:   2,
	ScoreProfile:      2,
	ScoreAddPiece:     3,
	ScoreDeletePiece:  3,
	ScoreEditProfile:  2,
	ScoreAddPiecePage: 1,
}

// TotalScore は result の内訳に重みを掛けた合計を返す
func TotalScore(breakdown map[score.ScoreTag]int64) int64 {
	var total int64
	for tag, count := range breakdown {
		total += ScoreWeights[tag] * count
	}
	return total
}

// オプションと全データを持つシナリオ構造体
type Scenario struct {
	Option Option

	Musicians mapset.Set

	scoreClose sync.Once
	prepareErr error
}

func NewScenario(o Option) *Scenario {
	return &Scenario{
		Option:    o,
		Musicians: mapset.NewSet(),
	}
}

// PrepareError は Prepare が失敗していればその理由を返す
func (s *Scenario) PrepareError() error {
	return s.prepareErr
}

// CloseScore は集計を締め切る。何度呼んでもよい
func (s *Scenario) CloseScore(sc *score.Score) {
	s.scoreClose.Do(func() {
		sc.Close()
	})
}

// isucandar.PrepeareScenario を満たすメソッド
// isucandar.Benchmark の Prepare ステップで実行される
func (s *Scenario) Prepare(ctx context.Context, step *isucandar.BenchmarkStep) error {
	if err := s.prepare(ctx, step); err != nil {
		s.prepareErr = err
		return err
	}
	return nil
}

func (s *Scenario) prepare(ctx context.Context, step *isucandar.BenchmarkStep) error {
	// Prepareは60秒以内に完了
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if !s.Option.SkipPrepare {
		debug := Debug
		defer func() {
			Debug = debug
		}()
		Debug = true // prepareは常にデバッグログを出す

		// 検証シナリオを1回まわす
		if err := s.ValidationScenario(ctx, step); err != nil {
			return fmt.Errorf("整合性チェックに失敗しました: %w", err)
		}
		ContestantLogger.Printf("整合性チェックに成功しました")
	}

	// 負荷走行で使う演奏者を登録しておく
	for i := 0; i < s.Option.InitialMusicians; i++ {
		ag, err := s.Option.NewAgent(true)
		if err != nil {
			return failure.NewError(ErrCannotNewAgent, err)
		}
		m, res, err := RegisterAction(ctx, ag)
		if v := ValidateResponse("初期演奏者の登録", step, res, err, WithRedirect("/login")); !v.IsEmpty() {
			return v
		}
		s.Musicians.Add(m)
	}
	AdminLogger.Printf("%d musicians registered", s.Musicians.Cardinality())
	return nil
}

// isucandar.LoadScenario を満たすメソッド
// isucandar.Benchmark の Load ステップで実行される
func (s *Scenario) Load(ctx context.Context, step *isucandar.BenchmarkStep) error {
	if s.Option.PrepareOnly {
		return nil
	}
	ContestantLogger.Println("負荷テストを開始します")
	defer ContestantLogger.Println("負荷テストを終了します")
	wg := &sync.WaitGroup{}

	// ログインして作品を編集するシナリオ
	musicianCase, err := s.MusicianWorker(step, 1)
	if err != nil {
		return err
	}
	// 新規登録シナリオ
	newcomerCase, err := s.NewcomerWorker(step, 1)
	if err != nil {
		return err
	}
	// 匿名シナリオ
	anonCase, err := s.AnonWorker(step, 1)
	if err != nil {
		return err
	}

	workers := []*worker.Worker{
		musicianCase,
		newcomerCase,
		anonCase,
	}
	for _, w := range workers {
		wg.Add(1)
		worker := w
		go func() {
			defer wg.Done()
			worker.Process(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loadAdjustor(ctx, step, musicianCase, anonCase)
	}()
	wg.Wait()
	return nil
}

func (s *Scenario) loadAdjustor(ctx context.Context, step *isucandar.BenchmarkStep, workers ...*worker.Worker) {
	tk := time.NewTicker(time.Second)
	defer tk.Stop()
	var prevErrors int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
		}
		errors := step.Result().Errors.Count()
		total := errors["load"]
		if total >= int64(MaxErrors) {
			ContestantLogger.Printf("負荷テストを打ち切ります (エラー数:%d)", total)
			AdminLogger.Printf("%#v", errors)
			s.CloseScore(step.Result().Score)
			step.Cancel()
			return
		}
		addParallels := int32(1)
		if diff := total - prevErrors; diff > 0 {
			ContestantLogger.Printf("エラーが%d件増えました(現在%d件)", diff, total)
			addParallels = 0
		} else {
			ContestantLogger.Println("ユーザーが増えます")
		}
		if addParallels > 0 {
			for _, w := range workers {
				w.AddParallelism(addParallels)
			}
		}
		prevErrors = total
	}
}

func (s *Scenario) ChoiceMusician(ctx context.Context) (*Musician, func()) {
	for {
		select {
		case <-ctx.Done():
			return nil, func() {}
		default:
		}
		if u := s.Musicians.Pop(); u == nil {
			time.Sleep(time.Second)
			continue
		} else {
			m := u.(*Musician)
			return m, func() {
				if ag, err := m.GetAgent(s.Option); err == nil {
					ag.HttpClient.CloseIdleConnections()
				}
				s.Musicians.Add(u)
			}
		}
	}
}

var nullFunc = func() {}

func timeReporter(name string) func() {
	if !Debug {
		return nullFunc
	}
	start := time.Now()
	return func() {
		AdminLogger.Printf("Scenario:%s elapsed:%s", name, time.Since(start))
	}
}
