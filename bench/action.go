package bench

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/isucon/isucandar/agent"
)

func getAction(ctx context.Context, path string, ag *agent.Agent) (*http.Response, error) {
	// リクエストを生成
	req, err := ag.GET(path)
	if err != nil {
		return nil, err
	}

	// リクエストを実行
	return ag.Do(ctx, req)
}

func postFormAction(ctx context.Context, path string, form url.Values, ag *agent.Agent) (*http.Response, error) {
	// リクエストを生成
	req, err := ag.POST(path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// リクエストを実行
	return ag.Do(ctx, req)
}

func GetRootAction(ctx context.Context, ag *agent.Agent) (*http.Response, error) {
	return getAction(ctx, "/", ag)
}

func SearchAction(ctx context.Context, query string, ag *agent.Agent) (*http.Response, error) {
	return getAction(ctx, "/?"+url.Values{"search": {query}}.Encode(), ag)
}

func GetOwnProfileAction(ctx context.Context, ag *agent.Agent) (*http.Response, error) {
	return getAction(ctx, "/own_profile", ag)
}

func GetProfileAction(ctx context.Context, musicianID int64, ag *agent.Agent) (*http.Response, error) {
	return getAction(ctx, "/profile/"+strconv.FormatInt(musicianID, 10), ag)
}

func GetAddPieceAction(ctx context.Context, ag *agent.Agent) (*http.Response, error) {
	return getAction(ctx, "/add_piece", ag)
}

// NewMusician は未登録の演奏者を生成する
func NewMusician() *Musician {
	return &Musician{
		Username:   GenerateUsername(),
		Password:   RandomString(16),
		Name:       DisplayName(),
		Instrument: RandomInstrument(),
		Bio:        "Hello, I am a " + RandomString(8) + " player.",
	}
}

func RegisterAction(ctx context.Context, ag *agent.Agent) (*Musician, *http.Response, error) {
	m := NewMusician()
	res, err := RegisterWithConfirmationAction(ctx, m, m.Password, ag)
	if err != nil {
		return nil, res, err
	}
	return m, res, nil
}

func RegisterWithConfirmationAction(ctx context.Context, m *Musician, confirmation string, ag *agent.Agent) (*http.Response, error) {
	return postFormAction(ctx, "/register", url.Values{
		"username":     {m.Username},
		"name":         {m.Name},
		"instrument":   {m.Instrument},
		"bio":          {m.Bio},
		"password":     {m.Password},
		"confirmation": {confirmation},
	}, ag)
}

func LoginAction(ctx context.Context, m *Musician, ag *agent.Agent) (*http.Response, error) {
	report := timeReporter("login action")
	defer report()
	return LoginWithPasswordAction(ctx, m.Username, m.GetPassword(), ag)
}

func LoginWithPasswordAction(ctx context.Context, username, password string, ag *agent.Agent) (*http.Response, error) {
	return postFormAction(ctx, "/login", url.Values{
		"username": {username},
		"password": {password},
	}, ag)
}

func LogoutAction(ctx context.Context, ag *agent.Agent) (*http.Response, error) {
	return getAction(ctx, "/logout", ag)
}

func AddPieceAction(ctx context.Context, p *Piece, ag *agent.Agent) (*http.Response, error) {
	return postFormAction(ctx, "/add_piece", url.Values{
		"title":    {p.Title},
		"composer": {p.Composer},
		"year":     {strconv.Itoa(p.Year)},
	}, ag)
}

func DeletePieceAction(ctx context.Context, pieceID int64, ag *agent.Agent) (*http.Response, error) {
	return postFormAction(ctx, "/delete_piece/"+strconv.FormatInt(pieceID, 10), url.Values{}, ag)
}

// EditProfileAction は newPassword が空でなければパスワードも変更する
func EditProfileAction(ctx context.Context, m *Musician, newPassword string, ag *agent.Agent) (*http.Response, error) {
	return postFormAction(ctx, "/edit_profile", url.Values{
		"name":         {m.Name},
		"instrument":   {m.Instrument},
		"bio":          {m.Bio},
		"password":     {m.GetPassword()},
		"new_password": {newPassword},
		"confirmation": {newPassword},
	}, ag)
}
