package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/psaab/gtctl/pkg/aggregate"
	"github.com/psaab/gtctl/pkg/lpm"
)

type estimateOptions struct {
	ipv4File string
	ipv6File string
}

func newEstimateCommand() *cobra.Command {
	opts := &estimateOptions{}
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the LPM table size needed for prefix lists",
		Long: "Estimate reads files of one prefix per line (blank lines and lines\n" +
			"starting with # are skipped) and prints the rules and tbl8 groups an\n" +
			"LPM table holding them needs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.ipv4File, "ipv4", "4", "", "file of IPv4 prefixes")
	cmd.Flags().StringVarP(&opts.ipv6File, "ipv6", "6", "", "file of IPv6 prefixes")
	return cmd
}

func runEstimate(w io.Writer, opts *estimateOptions) error {
	files := map[aggregate.Family]string{
		aggregate.IPv4: opts.ipv4File,
		aggregate.IPv6: opts.ipv6File,
	}
	if opts.ipv4File == "" && opts.ipv6File == "" {
		return errors.New("at least one of --ipv4 or --ipv6 is required")
	}

	var results [2]*lpm.Params
	var g errgroup.Group
	for i, family := range aggregate.Families {
		path := files[family]
		if path == "" {
			continue
		}
		g.Go(func() error {
			prefixes, err := readPrefixFile(path, family)
			if err != nil {
				return err
			}
			p := lpm.Estimate(family, prefixes)
			results[i] = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, family := range aggregate.Families {
		if results[i] != nil {
			fmt.Fprintf(w, "%s: %s\n", family, results[i])
		}
	}
	return nil
}

func readPrefixFile(path string, family aggregate.Family) ([]netip.Prefix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	prefixes, err := readPrefixes(f, family)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prefixes, nil
}

// readPrefixes parses one prefix per line and returns the distinct
// prefixes in order. Host bits are cleared.
func readPrefixes(r io.Reader, family aggregate.Family) ([]netip.Prefix, error) {
	set := aggregate.NewEntrySet()
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := netip.ParsePrefix(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if aggregate.FamilyOf(p) != family {
			return nil, fmt.Errorf("line %d: %s is not an %s prefix", n, p, family)
		}
		set.Insert(aggregate.Entry{Range: p.Masked()})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return set.Ranges(), nil
}
