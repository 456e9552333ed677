package lsmgo_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/lsmgo"
)

func Example() {
	ctx := context.Background()

	db, err := lsmgo.Open(ctx, accountPolicy(1024), accountCodec{},
		lsmgo.WithLogger(lsmgo.NoopLogger()),
	)
	if err != nil {
		panic(err)
	}
	defer db.Close(ctx)

	_ = db.Put(ctx, account{ID: 42, Balance: 1000})
	_ = db.Put(ctx, account{ID: 42, Balance: 1250}) // update wins

	acc, _ := db.Get(ctx, 42)
	fmt.Println("balance:", acc.Balance)

	_ = db.Delete(ctx, 42)
	if _, err := db.Get(ctx, 42); errors.Is(err, lsmgo.ErrNotFound) {
		fmt.Println("deleted")
	}

	// Output:
	// balance: 1250
	// deleted
}
