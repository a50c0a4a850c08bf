package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/sessionctx/assembler"
	"github.com/BaSui01/sessionctx/card"
	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/refresh"
	"github.com/BaSui01/sessionctx/session"
	"github.com/BaSui01/sessionctx/types"
	"github.com/BaSui01/sessionctx/updaters"
)

// =============================================================================
// 📄 show / render
// =============================================================================

// NewShowCmd 创建 show 命令
func NewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <sid>",
		Short: "Print the stored session document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid := session.NormalizeSessionID(args[0])
			return withRuntime(cmd, func(ctx context.Context, rt *app) error {
				doc, err := rt.store.Load(ctx, sid)
				if err != nil {
					return err
				}
				if doc == nil {
					return types.NewError(types.ErrNotFound, "unknown session").WithSession(sid)
				}
				return printResult(cmd, doc, func(w io.Writer) {
					data, _ := json.MarshalIndent(doc, "", "  ")
					fmt.Fprintln(w, string(data))
				})
			})
		},
	}
}

type renderFlags struct {
	Domain string
}

// NewRenderCmd 创建 render 命令
func NewRenderCmd() *cobra.Command {
	var opts renderFlags
	cmd := &cobra.Command{
		Use:   "render <sid>",
		Short: "Print the session block injected into prompts",
		Long: `Render the active payload of a session the way it is placed in the prompt:
domain summary lines first, then the card block. The domain is taken from the
session id prefix unless --domain is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid := session.NormalizeSessionID(args[0])
			d := domainFor(sid, opts.Domain)
			return withRuntime(cmd, func(ctx context.Context, rt *app) error {
				doc, err := rt.store.Load(ctx, sid)
				if err != nil {
					return err
				}
				block := assembler.RenderSessionBlock(d, doc)
				result := map[string]any{
					"sid":    sid,
					"domain": d,
					"block":  block,
					"bytes":  len(block),
				}
				return printResult(cmd, result, func(w io.Writer) {
					fmt.Fprintln(w, block)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "domain: financial, therapy, generic (default: from sid)")
	return cmd
}

// =============================================================================
// ⚖️ rebalance
// =============================================================================

type rebalanceFlags struct {
	Domain   string
	Parallel int
}

type rebalanceReport struct {
	SID           string       `json:"sid"`
	Domain        types.Domain `json:"domain"`
	BytesBefore   int          `json:"bytes_before"`
	BytesAfter    int          `json:"bytes_after"`
	FreshEvicted  int          `json:"fresh_evicted"`
	PinsTruncated int          `json:"pins_truncated"`
	PinsPopped    int          `json:"pins_popped"`
	DigestDropped int          `json:"digest_dropped"`
}

// NewRebalanceCmd 创建 rebalance 命令
func NewRebalanceCmd() *cobra.Command {
	var opts rebalanceFlags
	cmd := &cobra.Command{
		Use:   "rebalance <sid> [sid...]",
		Short: "Force-compact the active card of one or more sessions",
		Long: `Run the card compaction on the active payload of each session and save
the result, regardless of the refresh triggers. Session stats are untouched.
Sessions are processed concurrently, at most --parallel at a time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app) error {
				reports, err := rebalanceAll(ctx, rt.engine, args, opts)
				if err != nil {
					return err
				}
				return printResult(cmd, reports, func(w io.Writer) {
					for _, r := range reports {
						fmt.Fprintf(w, "%s (%s): %d -> %d bytes, fresh_evicted=%d pins_truncated=%d pins_popped=%d digest_dropped=%d\n",
							r.SID, r.Domain, r.BytesBefore, r.BytesAfter, r.FreshEvicted, r.PinsTruncated, r.PinsPopped, r.DigestDropped)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "domain for every sid (default: from each sid)")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "maximum sessions rebalanced at once")
	return cmd
}

func rebalanceAll(ctx context.Context, engine *session.Engine, sids []string, opts rebalanceFlags) ([]rebalanceReport, error) {
	reports := make([]rebalanceReport, len(sids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallel > 0 {
		g.SetLimit(opts.Parallel)
	}
	for i, raw := range sids {
		i, raw := i, raw
		g.Go(func() error {
			sid := session.NormalizeSessionID(raw)
			d := domainFor(sid, opts.Domain)

			unlock, err := engine.Locker().Lock(gctx, sid)
			if err != nil {
				return err
			}
			defer unlock()

			res, err := engine.Rebalance(gctx, sid, d)
			if err != nil {
				return fmt.Errorf("rebalance %s: %w", sid, err)
			}
			mu.Lock()
			reports[i] = newRebalanceReport(sid, d, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func newRebalanceReport(sid string, d types.Domain, res *card.Result) rebalanceReport {
	return rebalanceReport{
		SID:           sid,
		Domain:        d,
		BytesBefore:   res.BytesBefore,
		BytesAfter:    res.BytesAfter,
		FreshEvicted:  res.FreshEvicted,
		PinsTruncated: res.PinsTruncated,
		PinsPopped:    res.PinsPopped,
		DigestDropped: res.DigestDropped,
	}
}

// =============================================================================
// 📊 usage
// =============================================================================

type usageFlags struct {
	Domain        string
	System        string
	User          string
	Prev          string
	CtxMax        int
	ReserveOutput int
}

type usageReport struct {
	SID               string          `json:"sid"`
	Domain            types.Domain    `json:"domain"`
	Usage             assembler.Usage `json:"usage"`
	SessionBlockBytes int             `json:"session_block_bytes"`
	Refresh           bool            `json:"refresh"`
	Trigger           refresh.Trigger `json:"trigger,omitempty"`
	TurnIdx           int             `json:"turn_idx"`
}

// NewUsageCmd 创建 usage 命令
func NewUsageCmd() *cobra.Command {
	var opts usageFlags
	cmd := &cobra.Command{
		Use:   "usage <sid>",
		Short: "Estimate prompt budget usage and the refresh decision",
		Long: `Assemble the prompt for a hypothetical turn without saving anything and
report the token budget, the tokens used by the session block and previous
reply, and whether the next turn would refresh the card.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid := session.NormalizeSessionID(args[0])
			d := domainFor(sid, opts.Domain)
			return withRuntime(cmd, func(ctx context.Context, rt *app) error {
				asm, err := rt.asm.Assemble(ctx, d, assembler.AssembleInput{
					SessionID:         sid,
					SystemText:        opts.System,
					UserText:          opts.User,
					PrevAssistantText: opts.Prev,
					CtxMax:            opts.CtxMax,
					ReserveOutput:     opts.ReserveOutput,
				})
				if err != nil {
					return err
				}
				stats := types.StatsFrom(asm.State)
				decision := rt.cfg.Budget.Policy().Decide(stats, asm.UsageShare, asm.SessionBlockBytes)

				report := usageReport{
					SID:               sid,
					Domain:            d,
					Usage:             asm.Usage,
					SessionBlockBytes: asm.SessionBlockBytes,
					Refresh:           decision.Refresh,
					Trigger:           decision.Trigger,
					TurnIdx:           stats.TurnIdx,
				}
				return printResult(cmd, report, func(w io.Writer) {
					fmt.Fprintf(w, "budget:        %d tokens\n", report.Usage.Budget)
					fmt.Fprintf(w, "used:          %d tokens\n", report.Usage.Used)
					fmt.Fprintf(w, "share:         %.3f\n", report.Usage.Share)
					fmt.Fprintf(w, "session block: %d bytes\n", report.SessionBlockBytes)
					if report.Refresh {
						fmt.Fprintf(w, "refresh:       yes (%s)\n", report.Trigger)
					} else {
						fmt.Fprintln(w, "refresh:       no")
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "domain (default: from sid)")
	cmd.Flags().StringVar(&opts.System, "system", "", "system prompt text")
	cmd.Flags().StringVar(&opts.User, "user", "", "user message text")
	cmd.Flags().StringVar(&opts.Prev, "prev", "", "previous assistant reply")
	cmd.Flags().IntVar(&opts.CtxMax, "ctx-max", 0, "override budget.ctx_max")
	cmd.Flags().IntVar(&opts.ReserveOutput, "reserve-output", 0, "override budget.reserve_output")
	return cmd
}

// =============================================================================
// ✍️ complete
// =============================================================================

type completeFlags struct {
	Domain      string
	Reply       string
	CharacterID string
}

type completeReport struct {
	SID             string       `json:"sid"`
	Domain          types.Domain `json:"domain"`
	Reply           string       `json:"reply"`
	Written         bool         `json:"written"`
	RefreshRequired bool         `json:"refresh_required"`
}

// NewCompleteCmd 创建 complete 命令
func NewCompleteCmd() *cobra.Command {
	var opts completeFlags
	cmd := &cobra.Command{
		Use:   "complete <sid>",
		Short: "Write a model reply into the session card",
		Long: `Sanitize a model reply and run the domain patch writer on it, as the
engine does at the end of a turn. A reply that would overflow the session
document force-rebalances the active card instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Reply == "" {
				return fmt.Errorf("%w: --reply is required", persistence.ErrInvalidInput)
			}
			sid := session.NormalizeSessionID(args[0])
			d := domainFor(sid, opts.Domain)
			return withRuntime(cmd, func(ctx context.Context, rt *app) error {
				unlock, err := rt.engine.Locker().Lock(ctx, sid)
				if err != nil {
					return err
				}
				defer unlock()

				var writeOpts []updaters.Option
				if opts.CharacterID != "" {
					writeOpts = append(writeOpts, updaters.WithCharacterID(opts.CharacterID))
				}
				out, err := rt.engine.CompleteTurn(ctx, sid, d, opts.Reply, writeOpts...)
				if err != nil {
					return err
				}
				report := completeReport{
					SID:             sid,
					Domain:          d,
					Reply:           out.Reply,
					Written:         out.Written,
					RefreshRequired: out.RefreshRequired,
				}
				return printResult(cmd, report, func(w io.Writer) {
					switch {
					case report.RefreshRequired:
						fmt.Fprintf(w, "%s: capacity exceeded, card rebalanced\n", sid)
					case report.Written:
						fmt.Fprintf(w, "%s: patch written\n", sid)
					default:
						fmt.Fprintf(w, "%s: nothing to write\n", sid)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "domain (default: from sid)")
	cmd.Flags().StringVar(&opts.Reply, "reply", "", "model reply text")
	cmd.Flags().StringVar(&opts.CharacterID, "character-id", "", "character id stored with the session")
	return cmd
}

// domainFor 解析 --domain，未指定时按 sid 前缀推断
func domainFor(sid, flag string) types.Domain {
	if flag != "" {
		return types.ParseDomain(flag)
	}
	return session.DomainOf(sid)
}
