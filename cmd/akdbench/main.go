// Command akdbench measures publish and lookup latency against a
// synthetic user population, profiling both with pprof the way the
// teacher's original tree-insertion benchmark did.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/openakd/akd/crypto"
	"github.com/openakd/akd/directory"
)

func main() {
	benchmarkPublishThenLookup()
}

func benchmarkPublishThenLookup() {
	f, err := os.Create("cpu.prof")
	if err != nil {
		panic(err)
	}
	g, err := os.Create("mem.prof")
	if err != nil {
		panic(err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		panic(err)
	}
	defer pprof.StopCPUProfile()
	defer func() { _ = pprof.WriteHeapProfile(g) }()

	// Number of users already published before the measured batch.
	n := 100000
	// Users published in the batch whose latency is measured.
	toPublish := 1000

	signer := crypto.NewDeterministicSigner([32]byte{})
	d, err := directory.New(context.Background(), directory.WithVRF(signer), directory.WithCommitmentKey(make([]byte, 32)))
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	value := []byte("value")

	warm := make([]directory.Update, n)
	for i := range warm {
		warm[i] = directory.Update{Label: randomLabel(), Value: value}
	}
	fmt.Printf("Publishing %d warm-up users\n", n)
	if _, err := d.Publish(ctx, warm); err != nil {
		panic(err)
	}

	batch := make([]directory.Update, toPublish)
	for i := range batch {
		batch[i] = directory.Update{Label: randomLabel(), Value: value}
	}

	start := time.Now()
	if _, err := d.Publish(ctx, batch); err != nil {
		panic(err)
	}
	fmt.Printf("Took %v to publish %d users\n", time.Since(start), toPublish)

	start = time.Now()
	for _, u := range batch {
		if _, err := d.Lookup(ctx, u.Label); err != nil {
			panic(err)
		}
	}
	fmt.Printf("Took %v to look up %d published users\n", time.Since(start), toPublish)
}

func randomLabel() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", buf)
}
