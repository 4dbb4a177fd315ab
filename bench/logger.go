package bench

import (
	"log"
	"os"
)

var (
	// 競技者向けのログ
	ContestantLogger = log.New(os.Stdout, "", log.Ltime|log.Lmicroseconds)
	// 運営向けのログ
	AdminLogger = log.New(os.Stderr, "[ADMIN] ", log.Ltime|log.Lmicroseconds)
)
