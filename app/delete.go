package app

import (
	"bufio"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/ayoisaiah/tally/internal/config"
	"github.com/ayoisaiah/tally/store"
)

// prune deletes samples and events older than before. It requests
// confirmation before proceeding unless skip is set.
func prune(db store.DB, before time.Time, skip bool) error {
	if !skip {
		warning := pterm.Warning.Sprintf(
			"Samples and calendar events before %s will be deleted permanently. Press ENTER to proceed",
			before.Local().Format(time.DateTime),
		)

		fmt.Fprint(config.Stdout, warning)

		reader := bufio.NewReader(config.Stdin)

		_, _ = reader.ReadString('\n')
	}

	n, err := db.Prune(before)
	if err != nil {
		return err
	}

	pterm.Success.Printfln("Deleted %d samples and events", n)

	return nil
}
