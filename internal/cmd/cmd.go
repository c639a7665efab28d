package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/Malowking/guidekb/core/config"
	"github.com/Malowking/guidekb/core/guidelines"
	"github.com/Malowking/guidekb/pkg/schema"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/gcmd"
)

var (
	Main = gcmd.Command{
		Name:  "guidekb",
		Usage: "guidekb COMMAND [OPTION]",
		Brief: "clinical guideline retrieval",
	}

	Index = gcmd.Command{
		Name:  "index",
		Usage: "index [--rebuild]",
		Brief: "build or load the guideline index",
		Arguments: []gcmd.Argument{
			{Name: "rebuild", Brief: "drop the persisted index and rebuild it", Orphan: true},
		},
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			return withService(ctx, func(s *guidelines.Service) error {
				if rebuildRequested(parser) {
					if err := s.Rebuild(ctx); err != nil {
						return err
					}
				}
				if degraded, reason := s.Degraded(); degraded {
					return fmt.Errorf("guideline index unavailable: %s", reason)
				}
				info, _ := s.IndexInfo()
				return printJSON(info)
			})
		},
	}

	Search = gcmd.Command{
		Name:  "search",
		Usage: "search -q QUERY [-k N] [-s SPECIALTY]",
		Brief: "search guidelines",
		Arguments: []gcmd.Argument{
			{Name: "query", Short: "q", Brief: "free-text query"},
			{Name: "k", Short: "k", Brief: "number of results"},
			{Name: "specialty", Short: "s", Brief: "specialty filter"},
		},
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			query := parser.GetOpt("query").String()
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("query is required")
			}
			return withService(ctx, func(s *guidelines.Service) error {
				results := s.SearchGuidelines(ctx, query, parser.GetOpt("k", 0).Int(), parser.GetOpt("specialty").String())
				return printJSON(results)
			})
		},
	}

	Protocol = gcmd.Command{
		Name:  "protocol",
		Usage: "protocol -c CONDITION [--age N] [--conditions a,b] [-s SPECIALTY]",
		Brief: "protocol recommendation for a clinical condition",
		Arguments: []gcmd.Argument{
			{Name: "condition", Short: "c", Brief: "clinical condition"},
			{Name: "age", Brief: "patient age"},
			{Name: "conditions", Brief: "comma separated comorbidities"},
			{Name: "department", Brief: "patient department"},
			{Name: "specialty", Short: "s", Brief: "specialty filter"},
		},
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			condition := parser.GetOpt("condition").String()
			if strings.TrimSpace(condition) == "" {
				return fmt.Errorf("condition is required")
			}

			patient := patientFromOptions(parser)
			return withService(ctx, func(s *guidelines.Service) error {
				text, _ := s.GetProtocolRecommendation(ctx, condition, patient, parser.GetOpt("specialty").String())
				fmt.Println(text)
				return nil
			})
		},
	}

	Stats = gcmd.Command{
		Name:  "stats",
		Usage: "stats",
		Brief: "guideline corpus statistics",
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			return withService(ctx, func(s *guidelines.Service) error {
				return printJSON(s.GetStatistics(ctx))
			})
		},
	}
)

func init() {
	if err := Main.AddCommand(&Index, &Search, &Protocol, &Stats); err != nil {
		panic(err)
	}
}

// rebuildRequested --rebuild 为无值选项，出现即为真
func rebuildRequested(parser *gcmd.Parser) bool {
	return parser.GetOpt("rebuild") != nil
}

// patientFromOptions 未提供任何患者信息时返回 nil
func patientFromOptions(parser *gcmd.Parser) *schema.PatientContext {
	p := schema.PatientContext{
		Age:        parser.GetOpt("age", 0).Int(),
		Conditions: strings.Split(parser.GetOpt("conditions", "").String(), ","),
		Specialty:  parser.GetOpt("department", "").String(),
	}
	if p.IsZero() {
		return nil
	}
	p.Conditions = p.ActiveConditions()
	return &p
}

// withService 加载配置、初始化服务，执行完毕后释放资源
func withService(ctx context.Context, fn func(s *guidelines.Service) error) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	s := guidelines.NewService(cfg)
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			g.Log().Warningf(ctx, "Failed to close guideline service: %v", closeErr)
		}
	}()

	if err := s.Initialize(ctx); err != nil {
		return err
	}
	g.Log().Debugf(ctx, "Embedding capability: %s", s.Capability())
	return fn(s)
}

func printJSON(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
