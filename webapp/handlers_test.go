package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioScenario(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.newClient(t)

	res := ts.post(t, alice, "/register", url.Values{
		"username":     {"alice"},
		"name":         {"Alice"},
		"instrument":   {"Violin"},
		"bio":          {"Chamber musician"},
		"password":     {"pw1"},
		"confirmation": {"pw1"},
	})
	require.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "/login", res.Location)

	res = ts.get(t, alice, "/login")
	assert.Contains(t, res.Body, "Registration successful! You can now log in.")

	res = ts.login(t, alice, "alice", "pw1")
	require.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "/", res.Location)

	res = ts.post(t, alice, "/add_piece", url.Values{
		"title":    {"Sonata"},
		"composer": {"Beethoven"},
		"year":     {"1801"},
	})
	require.Equal(t, http.StatusFound, res.Status)
	musician, err := getMusicianByUsername(context.Background(), ts.db, "alice")
	require.NoError(t, err)
	assert.Equal(t, "/profile/"+strconv.FormatInt(musician.ID, 10), res.Location)

	res = ts.get(t, alice, "/own_profile")
	require.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Body, "Sonata")
	assert.Contains(t, res.Body, "Beethoven")
	assert.Contains(t, res.Body, "1801")
	assert.NotContains(t, res.Body, musician.PasswordHash)

	pieces, err := getPiecesByMusicianID(context.Background(), ts.db, musician.ID)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, musician.ID, pieces[0].MusicianID)

	res = ts.get(t, alice, "/logout")
	require.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "/", res.Location)

	res = ts.get(t, alice, "/own_profile")
	require.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "/login", res.Location)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ts := newTestServer(t)
	client := ts.newClient(t)

	require.Equal(t, http.StatusFound, ts.register(t, client, "alice", "pw1").Status)
	before, err := getMusicianByUsername(context.Background(), ts.db, "alice")
	require.NoError(t, err)

	res := ts.register(t, client, "alice", "other")
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.Contains(t, res.Body, "Username already exists. Please choose another.")
	assert.Equal(t, 1, ts.countRows(t, "musicians"))

	after, err := getMusicianByUsername(context.Background(), ts.db, "alice")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	ts := newTestServer(t)
	client := ts.newClient(t)

	res := ts.post(t, client, "/register", url.Values{
		"username":     {"bob"},
		"password":     {"secret"},
		"confirmation": {"Secret"},
	})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Contains(t, res.Body, "Passwords do not match. Please try again.")
	assert.Contains(t, res.Body, `value="bob"`)
	assert.NotContains(t, res.Body, "secret")
	assert.Equal(t, 0, ts.countRows(t, "musicians"))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ts := newTestServer(t)
	client := ts.newClient(t)
	require.Equal(t, http.StatusFound, ts.register(t, client, "alice", "pw1").Status)
	ts.get(t, client, "/login") // consume the registration notice

	unknown := ts.login(t, client, "mallory", "pw1")
	wrong := ts.login(t, client, "alice", "pw2")

	for _, res := range []response{unknown, wrong} {
		assert.Equal(t, http.StatusUnauthorized, res.Status)
		assert.Contains(t, res.Body, "Invalid username or password.")
	}
	assert.Equal(t,
		strings.Replace(unknown.Body, `value="mallory"`, "", 1),
		strings.Replace(wrong.Body, `value="alice"`, "", 1),
	)

	res := ts.get(t, client, "/own_profile")
	assert.Equal(t, "/login", res.Location)
}

func TestLogoutIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	client := ts.newClient(t)
	require.Equal(t, http.StatusFound, ts.register(t, client, "alice", "pw1").Status)
	require.Equal(t, http.StatusFound, ts.login(t, client, "alice", "pw1").Status)

	for i := 0; i < 2; i++ {
		res := ts.get(t, client, "/logout")
		require.Equal(t, http.StatusFound, res.Status)
		assert.Equal(t, "/", res.Location)

		res = ts.get(t, client, "/")
		assert.Contains(t, res.Body, "You have been logged out.")
		assert.Contains(t, res.Body, `href="/login"`)

		res = ts.get(t, client, "/own_profile")
		assert.Equal(t, "/login", res.Location)
	}
}

func TestDeletePieceOwnership(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	alice, bob := ts.newClient(t), ts.newClient(t)

	require.Equal(t, http.StatusFound, ts.register(t, alice, "alice", "pw1").Status)
	require.Equal(t, http.StatusFound, ts.register(t, bob, "bob", "pw2").Status)
	require.Equal(t, http.StatusFound, ts.login(t, alice, "alice", "pw1").Status)
	require.Equal(t, http.StatusFound, ts.login(t, bob, "bob", "pw2").Status)

	require.Equal(t, http.StatusFound, ts.post(t, alice, "/add_piece", url.Values{
		"title": {"Sonata"}, "composer": {"Beethoven"}, "year": {"1801"},
	}).Status)
	aliceRow, err := getMusicianByUsername(ctx, ts.db, "alice")
	require.NoError(t, err)
	pieces, err := getPiecesByMusicianID(ctx, ts.db, aliceRow.ID)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	path := fmt.Sprintf("/delete_piece/%d", pieces[0].ID)

	res := ts.post(t, bob, path, nil)
	require.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "/", res.Location)
	assert.Contains(t, ts.get(t, bob, "/").Body, "You do not have permission to delete this piece.")
	piece, err := getPieceByID(ctx, ts.db, pieces[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, piece)

	anonymous := ts.newClient(t)
	res = ts.post(t, anonymous, path, nil)
	assert.Equal(t, "/login", res.Location)
	assert.Equal(t, 1, ts.countRows(t, "pieces"))

	res = ts.post(t, alice, path, nil)
	require.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "/own_profile", res.Location)
	assert.Equal(t, 0, ts.countRows(t, "pieces"))

	res = ts.post(t, alice, path, nil)
	assert.Equal(t, "/", res.Location)
	assert.Contains(t, ts.get(t, alice, "/").Body, "Piece not found.")
}

func TestEditProfile(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	client := ts.newClient(t)
	require.Equal(t, http.StatusFound, ts.register(t, client, "alice", "pw1").Status)
	require.Equal(t, http.StatusFound, ts.login(t, client, "alice", "pw1").Status)

	t.Run("text fields without password change", func(t *testing.T) {
		res := ts.post(t, client, "/edit_profile", url.Values{
			"name": {"Alice A."}, "instrument": {"Viola"}, "bio": {"updated"},
		})
		require.Equal(t, http.StatusFound, res.Status)
		row, err := getMusicianByUsername(ctx, ts.db, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice A.", row.Name)
		assert.Equal(t, "Viola", row.Instrument)
		assert.Equal(t, "updated", row.Bio)
		assert.Equal(t, "/profile/"+strconv.FormatInt(row.ID, 10), res.Location)
	})

	t.Run("wrong current password persists nothing", func(t *testing.T) {
		res := ts.post(t, client, "/edit_profile", url.Values{
			"name": {"Changed"}, "instrument": {"Cello"}, "bio": {"x"},
			"password": {"nope"}, "new_password": {"pw2"}, "confirmation": {"pw2"},
		})
		assert.Equal(t, http.StatusBadRequest, res.Status)
		assert.Contains(t, res.Body, "Current password is incorrect.")
		assert.Contains(t, res.Body, `value="Alice A."`)
		row, err := getMusicianByUsername(ctx, ts.db, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice A.", row.Name)
	})

	t.Run("confirmation mismatch", func(t *testing.T) {
		res := ts.post(t, client, "/edit_profile", url.Values{
			"password": {"pw1"}, "new_password": {"pw2"}, "confirmation": {"pw3"},
		})
		assert.Equal(t, http.StatusBadRequest, res.Status)
		assert.Contains(t, res.Body, "New password and confirmation do not match.")
	})

	t.Run("password change", func(t *testing.T) {
		res := ts.post(t, client, "/edit_profile", url.Values{
			"name": {"Alice"}, "instrument": {"Violin"}, "bio": {"back"},
			"password": {"pw1"}, "new_password": {"pw2"}, "confirmation": {"pw2"},
		})
		require.Equal(t, http.StatusFound, res.Status)

		row, err := getMusicianByUsername(ctx, ts.db, "alice")
		require.NoError(t, err)
		ok, err := comparePasswordHash("pw1", row.PasswordHash)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = comparePasswordHash("pw2", row.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Alice", row.Name)

		other := ts.newClient(t)
		assert.Equal(t, http.StatusUnauthorized, ts.login(t, other, "alice", "pw1").Status)
		assert.Equal(t, http.StatusFound, ts.login(t, other, "alice", "pw2").Status)
	})
}

func TestLoginRotatesSessionID(t *testing.T) {
	ts := newTestServer(t)
	client := ts.newClient(t)
	require.Equal(t, http.StatusFound, ts.register(t, client, "alice", "pw1").Status)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	before := client.Jar.Cookies(u)
	require.NotEmpty(t, before)

	require.Equal(t, http.StatusFound, ts.login(t, client, "alice", "pw1").Status)
	require.Equal(t, http.StatusOK, ts.get(t, client, "/own_profile").Status)
	assert.NotEqual(t, before, client.Jar.Cookies(u))

	// a cookie captured before login stays anonymous
	replay := ts.newClient(t)
	replay.Jar.SetCookies(u, before)
	res := ts.get(t, replay, "/own_profile")
	assert.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "/login", res.Location)
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := insertMusician(ctx, ts.db, "Alice", "Alice Liddell", "Flute", "", "x")
	require.NoError(t, err)
	_, err = insertMusician(ctx, ts.db, "carol", "Carol", "Harp", "", "x")
	require.NoError(t, err)
	for i := 0; i < 60; i++ {
		_, err := insertMusician(ctx, ts.db, fmt.Sprintf("player%02d", i), "", "", "", "x")
		require.NoError(t, err)
	}
	client := ts.newClient(t)

	res := ts.get(t, client, "/?search=ali")
	require.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Body, ">Alice</a>")
	assert.NotContains(t, res.Body, "carol")

	_, err = insertMusician(ctx, ts.db, "elodie", "Élodie Ørsted", "Cello", "", "x")
	require.NoError(t, err)
	for _, q := range []string{"élodie", "ÉLODIE", "ørsted", "ØRSTED", "ELODIE"} {
		res := ts.get(t, client, "/?search="+url.QueryEscape(q))
		require.Equal(t, http.StatusOK, res.Status, q)
		assert.Contains(t, res.Body, ">elodie</a>", q)
	}

	res = ts.get(t, client, "/?search=PLAYER")
	assert.Equal(t, searchLimit, strings.Count(res.Body, `href="/profile/`))

	res = ts.get(t, client, "/")
	assert.NotContains(t, res.Body, "No musicians found.")
	assert.NotContains(t, res.Body, `href="/profile/`)
}

func TestPublicProfile(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	id, err := insertMusician(ctx, ts.db, "alice", "Alice", "Violin", "bio text", "hash-must-not-leak")
	require.NoError(t, err)
	_, err = insertPiece(ctx, ts.db, "Partita", "Bach", 1720, id)
	require.NoError(t, err)
	client := ts.newClient(t)

	res := ts.get(t, client, "/profile/"+strconv.FormatInt(id, 10))
	require.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Body, "Partita")
	assert.Contains(t, res.Body, "bio text")
	assert.NotContains(t, res.Body, "hash-must-not-leak")

	for _, path := range []string{"/profile/9999", "/profile/abc"} {
		res := ts.get(t, client, path)
		assert.Equal(t, http.StatusNotFound, res.Status, path)
		assert.Equal(t, "Musician not found", res.Body, path)
	}
}

func TestOwnProfileOfDeletedMusician(t *testing.T) {
	ts := newTestServer(t)
	client := ts.newClient(t)
	require.Equal(t, http.StatusFound, ts.register(t, client, "alice", "pw1").Status)
	require.Equal(t, http.StatusFound, ts.login(t, client, "alice", "pw1").Status)

	_, err := ts.db.Exec("DELETE FROM musicians WHERE username = ?", "alice")
	require.NoError(t, err)

	res := ts.get(t, client, "/own_profile")
	require.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "/", res.Location)
	assert.Contains(t, ts.get(t, client, "/").Body, "User not found.")
}

func TestAuthRequiredRoutes(t *testing.T) {
	ts := newTestServer(t)
	client := ts.newClient(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/own_profile"},
		{http.MethodGet, "/add_piece"},
		{http.MethodPost, "/add_piece"},
		{http.MethodPost, "/delete_piece/1"},
		{http.MethodGet, "/edit_profile"},
		{http.MethodPost, "/edit_profile"},
	} {
		var res response
		if tc.method == http.MethodGet {
			res = ts.get(t, client, tc.path)
		} else {
			res = ts.post(t, client, tc.path, url.Values{"title": {"x"}})
		}
		assert.Equal(t, http.StatusFound, res.Status, tc.path)
		assert.Equal(t, "/login", res.Location, tc.path)
	}
	assert.Equal(t, 0, ts.countRows(t, "pieces"))
}

func TestAddPieceValidation(t *testing.T) {
	ts := newTestServer(t)
	client := ts.newClient(t)
	require.Equal(t, http.StatusFound, ts.register(t, client, "alice", "pw1").Status)
	require.Equal(t, http.StatusFound, ts.login(t, client, "alice", "pw1").Status)

	res := ts.post(t, client, "/add_piece", url.Values{
		"title": {"Sonata"}, "composer": {"Beethoven"}, "year": {"eighteen-oh-one"},
	})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Contains(t, res.Body, "Year must be a number")
	assert.Contains(t, res.Body, `value="Sonata"`)
	assert.Equal(t, 0, ts.countRows(t, "pieces"))
}

func TestResponseHeaders(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "private", res.Header.Get("Cache-Control"))
	assert.Len(t, res.Header.Get("X-Request-Id"), 26)

	res2, err := http.Get(ts.URL + "/no/such/page")
	require.NoError(t, err)
	defer res2.Body.Close()
	assert.Equal(t, http.StatusNotFound, res2.StatusCode)
}
