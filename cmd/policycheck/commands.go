package main

import (
	"fmt"
	"strconv"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/services"
	"uplinkpolicy/pkg/config"
	"uplinkpolicy/pkg/logger"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	rulesFlag = &cli.StringFlag{
		Name:    "rules",
		Aliases: []string{"r"},
		Usage:   "YAML rule table or config file; the built-in table when omitted",
		EnvVars: []string{"UPLINKPOLICY_RULES"},
	}
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "log match trace records to stderr",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "policycheck",
		Usage: "inspect uplink bandwidth policy tables",
		Flags: []cli.Flag{rulesFlag, verboseFlag},
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "print the rule table in evaluation order",
				Action: showTable,
			},
			{
				Name:      "match",
				Usage:     "run one lookup against the table",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "participants", Aliases: []string{"p"}, Required: true},
					&cli.IntFlag{Name: "bitrate", Aliases: []string{"b"}, Usage: "uplink estimate in kbps", Required: true},
				},
				Action: matchTable,
			},
			{
				Name:   "validate",
				Usage:  "check the table and list every problem",
				Action: validateTable,
			},
		},
	}
}

func loadPolicy(c *cli.Context) (*services.BandwidthPolicy, error) {
	log := zap.NewNop()
	if c.Bool(verboseFlag.Name) {
		var err error
		if log, err = logger.New("debug", "console"); err != nil {
			return nil, err
		}
	}

	name := domain.DefaultPolicyName
	descriptors := services.DefaultRuleDescriptors()
	if path := c.String(rulesFlag.Name); path != "" {
		loaded, err := config.LoadRules(path)
		if err != nil {
			return nil, err
		}
		name = path
		descriptors = loaded
	}
	return services.NewBandwidthPolicyFromDescriptors(name, descriptors, log.Sugar()), nil
}

func showTable(c *cli.Context) error {
	policy, err := loadPolicy(c)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(c.App.Writer)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"#", "Participants", "Bitrate", "Low", "Medium", "High", "Streams"})
	for i, rule := range policy.Rules() {
		table.Append([]string{
			strconv.Itoa(i),
			rule.MaxParticipants().String(),
			rule.MaxBitrateKbps().String(),
			strconv.Itoa(rule.LowKbps()),
			strconv.Itoa(rule.MediumKbps()),
			strconv.Itoa(rule.HighKbps()),
			rule.ActiveStreams().String(),
		})
	}
	table.Render()
	return nil
}

func matchTable(c *cli.Context) error {
	policy, err := loadPolicy(c)
	if err != nil {
		return err
	}

	result := policy.TestMatch(c.Int("participants"), c.Int("bitrate"))
	fmt.Fprintln(c.App.Writer, result.Describe())
	if result.Fallback {
		fmt.Fprintln(c.App.Writer, "no rule matched; fallback applied")
	}
	fmt.Fprintf(c.App.Writer, "active streams: %s\n", result.ActiveStreams())
	return nil
}

func validateTable(c *cli.Context) error {
	policy, err := loadPolicy(c)
	if err != nil {
		return err
	}

	issues := domain.ValidationIssues(policy.Validate())
	if len(issues) == 0 {
		fmt.Fprintf(c.App.Writer, "ok: %d rules\n", policy.Len())
		return nil
	}
	for _, issue := range issues {
		fmt.Fprintln(c.App.Writer, issue.Error())
	}
	return cli.Exit(fmt.Sprintf("%d issue(s) found", len(issues)), 1)
}
