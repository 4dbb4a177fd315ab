package bench

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/isucon/isucandar/failure"
)

const (
	ErrValidation failure.StringCode = "validation"
)

type ValidationError struct {
	Title  string
	Errors []error
}

func (v ValidationError) Error() string {
	messages := make([]string, 0, len(v.Errors))
	for _, err := range v.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("%s: %s", v.Title, strings.Join(messages, ", "))
}

func (v ValidationError) IsEmpty() bool {
	return len(v.Errors) == 0
}

// isucandar.BenchmarkStep を満たす
type errorAdder interface {
	AddError(error)
}

type ResponseValidator func(*http.Response, []byte) error

// ValidateResponse は res の body を読み切って閉じ、validators を順に適用する
// 失敗は step に記録される
func ValidateResponse(title string, step errorAdder, res *http.Response, err error, validators ...ResponseValidator) ValidationError {
	ve := ValidationError{Title: title}
	defer func() {
		for _, e := range ve.Errors {
			step.AddError(e)
		}
	}()

	if err != nil {
		ve.Errors = append(ve.Errors, failure.NewError(ErrInvalidRequest, fmt.Errorf("%s: %w", title, err)))
		return ve
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		ve.Errors = append(ve.Errors, failure.NewError(ErrInvalidRequest, fmt.Errorf("%s: %w", title, err)))
		return ve
	}

	for _, v := range validators {
		if err := v(res, body); err != nil {
			ve.Errors = append(ve.Errors, failure.NewError(ErrValidation, fmt.Errorf("%s: %w", title, err)))
			// ステータスコードが違う場合はそれ以上検証しない
			var se statusCodeError
			if errors.As(err, &se) {
				break
			}
		}
	}
	return ve
}

type statusCodeError struct {
	expected []int
	actual   int
}

func (e statusCodeError) Error() string {
	return fmt.Sprintf("期待するHTTPステータスコード %v ではありません: %d", e.expected, e.actual)
}

func WithStatusCode(codes ...int) ResponseValidator {
	return func(r *http.Response, _ []byte) error {
		for _, code := range codes {
			if r.StatusCode == code {
				return nil
			}
		}
		return statusCodeError{expected: codes, actual: r.StatusCode}
	}
}

// WithRedirect はステータスコード 302 と Location のパスを検証する
func WithRedirect(location string) ResponseValidator {
	return func(r *http.Response, body []byte) error {
		if err := WithStatusCode(http.StatusFound)(r, body); err != nil {
			return err
		}
		if got := r.Header.Get("Location"); got != location {
			return fmt.Errorf("リダイレクト先が %s ではありません: %q", location, got)
		}
		return nil
	}
}

func WithCacheControlPrivate() ResponseValidator {
	return func(r *http.Response, _ []byte) error {
		if !strings.Contains(r.Header.Get("Cache-Control"), "private") {
			return fmt.Errorf("Cache-Control: private が含まれていません")
		}
		return nil
	}
}

func WithBodyContains(s string) ResponseValidator {
	return func(_ *http.Response, body []byte) error {
		if !strings.Contains(string(body), s) {
			return fmt.Errorf("レスポンスに %q が含まれていません", s)
		}
		return nil
	}
}

func WithBodyNotContains(s string) ResponseValidator {
	return func(_ *http.Response, body []byte) error {
		if strings.Contains(string(body), s) {
			return fmt.Errorf("レスポンスに %q が含まれています", s)
		}
		return nil
	}
}

// WithBody は body を受け取る任意の検証を行う
func WithBody(f func(body string) error) ResponseValidator {
	return func(_ *http.Response, body []byte) error {
		return f(string(body))
	}
}

var (
	profileLinkRegexp  = regexp.MustCompile(`href="/profile/(\d+)"`)
	deletePieceRegexp  = regexp.MustCompile(`action="/delete_piece/(\d+)"`)
	profileLocationReg = regexp.MustCompile(`^/profile/(\d+)$`)
)

// ProfileIDs は検索結果などに含まれるプロフィールへのリンクのIDを返す
func ProfileIDs(body string) []int64 {
	return submatchIDs(profileLinkRegexp, body)
}

// DeletablePieceIDs は自分のプロフィールページにある削除フォームのIDを返す
func DeletablePieceIDs(body string) []int64 {
	return submatchIDs(deletePieceRegexp, body)
}

// ProfileIDFromLocation は /profile/{id} へのリダイレクト先からIDを取り出す
func ProfileIDFromLocation(location string) (int64, bool) {
	m := profileLocationReg.FindStringSubmatch(location)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func submatchIDs(re *regexp.Regexp, body string) []int64 {
	var ids []int64
	seen := map[int64]bool{}
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
