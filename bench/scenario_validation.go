package bench

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/isucon/isucandar"
	"github.com/isucon/isucandar/failure"
	"github.com/samber/lo"
)

// 整合性検証シナリオ
// 他人の作品を削除しようとするので負荷テスト中には実行してはいけない
func (s *Scenario) ValidationScenario(ctx context.Context, step *isucandar.BenchmarkStep) error {
	report := timeReporter("validation")
	defer report()

	ContestantLogger.Println("整合性チェックを開始します")
	defer ContestantLogger.Printf("整合性チェックを終了します")

	ag, err := s.Option.NewAgent(true)
	if err != nil {
		return failure.NewError(ErrCannotNewAgent, err)
	}
	{
		// GET /
		res, err := GetRootAction(ctx, ag)
		v := ValidateResponse("トップページ", step, res, err,
			WithStatusCode(http.StatusOK),
			WithCacheControlPrivate(),
		)
		if !v.IsEmpty() {
			return v
		}
	}

	var alice *Musician
	{
		// 演奏者登録
		m, res, err := RegisterAction(ctx, ag)
		alice = m
		v := ValidateResponse("新規演奏者登録", step, res, err, WithRedirect("/login"))
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// 同じユーザー名では登録できない
		other, _ := s.Option.NewAgent(true)
		dup := NewMusician()
		dup.Username = alice.Username
		res, err := RegisterWithConfirmationAction(ctx, dup, dup.Password, other)
		v := ValidateResponse("重複したユーザー名での登録", step, res, err,
			WithStatusCode(http.StatusConflict),
			WithBodyContains("Username already exists"),
		)
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// パスワード確認が一致しなければ登録されない
		mismatch := NewMusician()
		res, err := RegisterWithConfirmationAction(ctx, mismatch, mismatch.Password+"x", ag)
		v := ValidateResponse("確認用パスワードが異なる登録", step, res, err,
			WithStatusCode(http.StatusBadRequest),
			WithBodyContains("Passwords do not match"),
		)
		if !v.IsEmpty() {
			return v
		}
		res, err = LoginAction(ctx, mismatch, ag)
		v = ValidateResponse("登録されていない演奏者のログイン", step, res, err,
			WithStatusCode(http.StatusUnauthorized),
			WithBodyContains("Invalid username or password."),
		)
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// パスワード違いと存在しないユーザーは区別できない
		res, err := LoginWithPasswordAction(ctx, alice.Username, alice.Password+"x", ag)
		v := ValidateResponse("誤ったパスワードでのログイン", step, res, err,
			WithStatusCode(http.StatusUnauthorized),
			WithBodyContains("Invalid username or password."),
		)
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// ログインしていなければ自分のプロフィールは見られない
		res, err := GetOwnProfileAction(ctx, ag)
		v := ValidateResponse("非ログインでの自分のプロフィール", step, res, err, WithRedirect("/login"))
		if !v.IsEmpty() {
			return v
		}
	}
	{
		res, err := LoginAction(ctx, alice, ag)
		v := ValidateResponse("ログイン", step, res, err, WithRedirect("/"))
		if !v.IsEmpty() {
			return v
		}
	}

	piece := RandomPiece()
	{
		// 作品追加
		res, err := AddPieceAction(ctx, piece, ag)
		v := ValidateResponse("作品追加", step, res, err,
			WithStatusCode(http.StatusFound),
			func(r *http.Response, _ []byte) error {
				id, ok := ProfileIDFromLocation(r.Header.Get("Location"))
				if !ok {
					return fmt.Errorf("作品追加後のリダイレクト先が不正です: %q", r.Header.Get("Location"))
				}
				alice.SetID(id)
				return nil
			},
		)
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// 年が数値でない作品は追加されない
		invalid := *piece
		invalid.Title = piece.Title + " (invalid)"
		res, err := postFormAction(ctx, "/add_piece", map[string][]string{
			"title":    {invalid.Title},
			"composer": {invalid.Composer},
			"year":     {"unknown"},
		}, ag)
		v := ValidateResponse("不正な作品追加", step, res, err, WithStatusCode(http.StatusBadRequest))
		if !v.IsEmpty() {
			return v
		}
	}
	{
		res, err := GetOwnProfileAction(ctx, ag)
		v := ValidateResponse("自分のプロフィール", step, res, err,
			WithStatusCode(http.StatusOK),
			WithCacheControlPrivate(),
			WithBodyContains(alice.Username),
			WithBody(func(body string) error {
				ids := DeletablePieceIDs(body)
				if len(ids) != 1 {
					return fmt.Errorf("作品の数が1件ではありません: %d", len(ids))
				}
				piece.ID = ids[0]
				return nil
			}),
		)
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// 公開プロフィールは誰でも見られる
		anon, _ := s.Option.NewAgent(true)
		res, err := GetProfileAction(ctx, alice.GetID(), anon)
		v := ValidateResponse("公開プロフィール", step, res, err,
			WithStatusCode(http.StatusOK),
			WithBodyContains(alice.Name),
			WithBodyContains(piece.Composer),
			WithBodyNotContains("/delete_piece/"),
		)
		if !v.IsEmpty() {
			return v
		}
		res, err = getAction(ctx, "/profile/0", anon)
		v = ValidateResponse("存在しない公開プロフィール", step, res, err, WithStatusCode(http.StatusNotFound))
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// 検索は大文字小文字を区別しない
		query := strings.ToUpper(alice.Username[len(alice.Username)-10:])
		res, err := SearchAction(ctx, query, ag)
		v := ValidateResponse("演奏者検索", step, res, err,
			WithStatusCode(http.StatusOK),
			WithBody(func(body string) error {
				if !lo.Contains(ProfileIDs(body), alice.GetID()) {
					return fmt.Errorf("検索結果に演奏者 %s が含まれていません", alice.Username)
				}
				return nil
			}),
		)
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// 他人の作品は削除できない
		otherAg, _ := s.Option.NewAgent(true)
		bob, res, err := RegisterAction(ctx, otherAg)
		v := ValidateResponse("別の演奏者の登録", step, res, err, WithRedirect("/login"))
		if !v.IsEmpty() {
			return v
		}
		res, err = LoginAction(ctx, bob, otherAg)
		v = ValidateResponse("別の演奏者のログイン", step, res, err, WithRedirect("/"))
		if !v.IsEmpty() {
			return v
		}
		res, err = DeletePieceAction(ctx, piece.ID, otherAg)
		v = ValidateResponse("他人の作品の削除", step, res, err, WithRedirect("/"))
		if !v.IsEmpty() {
			return v
		}
		res, err = GetProfileAction(ctx, alice.GetID(), otherAg)
		v = ValidateResponse("他人の作品の削除後の公開プロフィール", step, res, err,
			WithStatusCode(http.StatusOK),
			WithBodyContains(piece.Composer),
		)
		if !v.IsEmpty() {
			return v
		}
		s.Musicians.Add(bob)
	}
	{
		// 自分の作品は削除できる
		res, err := DeletePieceAction(ctx, piece.ID, ag)
		v := ValidateResponse("作品削除", step, res, err, WithRedirect("/own_profile"))
		if !v.IsEmpty() {
			return v
		}
		res, err = GetOwnProfileAction(ctx, ag)
		v = ValidateResponse("作品削除後の自分のプロフィール", step, res, err,
			WithStatusCode(http.StatusOK),
			WithBodyContains("Piece deleted successfully."),
			WithBodyNotContains("/delete_piece/"+strconv.FormatInt(piece.ID, 10)),
		)
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// プロフィール編集とパスワード変更
		alice.Name = DisplayName()
		alice.Instrument = RandomInstrument()
		newPassword := RandomString(16)
		res, err := EditProfileAction(ctx, alice, newPassword, ag)
		v := ValidateResponse("プロフィール編集", step, res, err,
			WithRedirect("/profile/"+strconv.FormatInt(alice.GetID(), 10)),
		)
		if !v.IsEmpty() {
			return v
		}
		alice.SetPassword(newPassword)
	}
	{
		// ログアウトは何度しても成功する
		for i := 0; i < 2; i++ {
			res, err := LogoutAction(ctx, ag)
			v := ValidateResponse("ログアウト", step, res, err, WithRedirect("/"))
			if !v.IsEmpty() {
				return v
			}
		}
		res, err := GetOwnProfileAction(ctx, ag)
		v := ValidateResponse("ログアウト後の自分のプロフィール", step, res, err, WithRedirect("/login"))
		if !v.IsEmpty() {
			return v
		}
	}
	{
		// 変更後のパスワードでログインできる
		res, err := LoginAction(ctx, alice, ag)
		v := ValidateResponse("パスワード変更後のログイン", step, res, err, WithRedirect("/"))
		if !v.IsEmpty() {
			return v
		}
		res, err = LogoutAction(ctx, ag)
		v = ValidateResponse("ログアウト", step, res, err, WithRedirect("/"))
		if !v.IsEmpty() {
			return v
		}
	}
	s.Musicians.Add(alice)
	return nil
}
