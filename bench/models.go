package bench

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/isucon/isucandar/agent"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
)

type Musicians []*Musician

func (ms Musicians) Choice() *Musician {
	return lo.Sample(ms)
}

type Musician struct {
	mu sync.RWMutex

	ID         int64
	Username   string
	Password   string
	Name       string
	Instrument string
	Bio        string

	Agent *agent.Agent
}

func (m *Musician) GetAgent(o Option) (*agent.Agent, error) {
	m.mu.RLock()
	a := m.Agent
	m.mu.RUnlock()
	if a != nil {
		return a, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := o.NewAgent(false)
	if err != nil {
		return nil, err
	}
	m.Agent = a
	return a, nil
}

func (m *Musician) SetID(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ID = id
}

func (m *Musician) GetID() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ID
}

func (m *Musician) SetPassword(password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Password = password
}

func (m *Musician) GetPassword() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Password
}

type Piece struct {
	ID       int64
	Title    string
	Composer string
	Year     int
}

var (
	firstNames  = []string{"Alice", "Bruno", "Chiara", "Daichi", "Elena", "Felix", "Greta", "Haruka", "Ivan", "Julia", "Kenji", "Lena", "Mateo", "Nadia", "Oskar", "Rin"}
	lastNames   = []string{"Sato", "Rossi", "Novak", "Muller", "Tanaka", "Silva", "Kowalski", "Dubois", "Ito", "Larsen"}
	instruments = []string{"Piano", "Violin", "Cello", "Flute", "Clarinet", "Guitar", "Harp", "Viola", "Oboe", "Trumpet"}
	works       = []Piece{
		{Title: "Clair de lune", Composer: "Claude Debussy", Year: 1905},
		{Title: "Cello Suite No. 1", Composer: "Johann Sebastian Bach", Year: 1720},
		{Title: "Violin Concerto in E minor", Composer: "Felix Mendelssohn", Year: 1844},
		{Title: "Gymnopedie No. 1", Composer: "Erik Satie", Year: 1888},
		{Title: "Rhapsody in Blue", Composer: "George Gershwin", Year: 1924},
		{Title: "The Lark Ascending", Composer: "Ralph Vaughan Williams", Year: 1914},
		{Title: "Syrinx", Composer: "Claude Debussy", Year: 1913},
		{Title: "Recuerdos de la Alhambra", Composer: "Francisco Tarrega", Year: 1896},
		{Title: "Piano Sonata No. 14", Composer: "Ludwig van Beethoven", Year: 1801},
		{Title: "Spiegel im Spiegel", Composer: "Arvo Part", Year: 1978},
	}
)

func DisplayName() string {
	return lo.Sample(firstNames) + " " + lo.Sample(lastNames)
}

func RandomInstrument() string {
	return lo.Sample(instruments)
}

// RandomPiece は曲名の重複を避けるため末尾に乱数を付ける
func RandomPiece() *Piece {
	w := lo.Sample(works)
	return &Piece{
		Title:    fmt.Sprintf("%s (take %s)", w.Title, RandomString(6)),
		Composer: w.Composer,
		Year:     w.Year,
	}
}

func GenerateUsername() string {
	return fmt.Sprintf("musician-%s", strings.ToLower(newULID()))
}

func newULID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func RandomString(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(letters)))
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = letters[v.Int64()]
	}
	return string(b)
}
