package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/isucon/isucandar"
	"github.com/isucon/isucandar/score"
	"github.com/kayac/musician-portfolio/bench"
)

func main() {
	var (
		option      bench.Option
		loadTimeout time.Duration
	)
	flag.StringVar(&option.TargetURL, "target-url", "http://localhost:3000", "benchmark target url")
	flag.DurationVar(&option.RequestTimeout, "request-timeout", 5*time.Second, "request timeout")
	flag.DurationVar(&loadTimeout, "load-timeout", time.Minute, "load timeout")
	flag.IntVar(&option.InitialMusicians, "initial-musicians", 10, "number of musicians registered before load")
	flag.BoolVar(&option.SkipPrepare, "skip-prepare", false, "skip validation scenario")
	flag.BoolVar(&option.PrepareOnly, "prepare-only", false, "run validation scenario only")
	flag.IntVar(&bench.MaxErrors, "max-errors", bench.MaxErrors, "abort load after this many errors")
	flag.BoolVar(&bench.Debug, "debug", false, "debug log")
	flag.Parse()

	bench.AdminLogger.Printf("option: %#v", option)

	b, err := isucandar.NewBenchmark(isucandar.WithLoadTimeout(loadTimeout))
	if err != nil {
		bench.AdminLogger.Fatal(err)
	}
	s := bench.NewScenario(option)
	b.AddScenario(s)

	result := b.Start(context.Background())
	s.CloseScore(result.Score)

	errs := result.Errors.All()
	for _, err := range errs {
		bench.ContestantLogger.Printf("ERROR: %s", err)
	}

	breakdown := result.Score.Breakdown()
	tags := make([]string, 0, len(breakdown))
	for tag := range breakdown {
		tags = append(tags, string(tag))
	}
	sort.Strings(tags)
	for _, tag := range tags {
		bench.ContestantLogger.Printf("%s: %d", tag, breakdown[score.ScoreTag(tag)])
	}

	if err := s.PrepareError(); err != nil {
		bench.ContestantLogger.Printf("整合性チェックに失敗したためスコアは0です: %s", err)
		fmt.Println("SCORE: 0")
		os.Exit(1)
	}

	total := bench.TotalScore(breakdown) - int64(len(errs))
	if total < 0 {
		total = 0
	}
	bench.ContestantLogger.Printf("errors: %d", len(errs))
	fmt.Printf("SCORE: %d\n", total)
}
