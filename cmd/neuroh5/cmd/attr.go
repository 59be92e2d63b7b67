package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/soltesz-lab/neuroh5/internal/wiring"
	"github.com/soltesz-lab/neuroh5/pkg/attribute"
	"github.com/soltesz-lab/neuroh5/pkg/elemtype"
	"github.com/soltesz-lab/neuroh5/pkg/neuroh5"
)

var (
	attrPop       string
	attrNamespace string
	attrName      string
	attrKindName  string
	attrFixture   string
	attrIOSize    int
)

var appendAttrCmd = &cobra.Command{
	Use:   "append-attr",
	Short: "Append a cell attribute from a fixture",
	RunE:  runAppendAttr,
}

var readAttrCmd = &cobra.Command{
	Use:   "read-attr",
	Short: "Read a cell attribute back out as JSON",
	RunE:  runReadAttr,
}

func init() {
	rootCmd.AddCommand(appendAttrCmd, readAttrCmd)

	for _, c := range []*cobra.Command{appendAttrCmd, readAttrCmd} {
		c.Flags().StringVar(&attrPop, "pop", "", "Population label (required)")
		c.Flags().StringVar(&attrNamespace, "namespace", "", "Attribute namespace (required)")
		c.Flags().StringVar(&attrName, "attr", "", "Attribute name (required)")
		c.Flags().StringVar(&attrKindName, "kind", "float32", "Element kind: uint8, uint16, uint32, uint64, int8, int16, int32, int64, float32, enum8")
		c.MarkFlagRequired("pop")
		c.MarkFlagRequired("namespace")
		c.MarkFlagRequired("attr")
	}
	appendAttrCmd.Flags().StringVar(&attrFixture, "fixture", "", "Path to an attribute fixture JSON file (required)")
	appendAttrCmd.MarkFlagRequired("fixture")
	appendAttrCmd.Flags().IntVar(&attrIOSize, "io-size", 1, "Number of I/O ranks the append is gathered onto")
}

func runAppendAttr(cmd *cobra.Command, args []string) error {
	timer := newPhaseTimer("append-attr")
	defer timer.PrintSummary()

	kind, err := elemtype.ParseKind(attrKindName)
	if err != nil {
		return err
	}
	loadPt := timer.Start("read-fixture")
	raw, err := readAttrFixture(attrFixture)
	loadPt.Stop()
	if err != nil {
		return err
	}

	size := cfg.Run.NumRanks
	if size < 1 {
		size = 1
	}
	ioSize := attrIOSize
	if ioSize < 1 {
		ioSize = 1
	}
	if ioSize > size {
		ioSize = size
	}

	openPt := timer.Start("open-session")
	session, err := wiring.OpenSession(cfg, size)
	openPt.Stop()
	if err != nil {
		return err
	}
	defer session.Container.Close()

	ctx := context.Background()
	regPt := timer.Start("load-registry")
	reg, err := loadRegistry(ctx, session)
	regPt.Stop()
	if err != nil {
		return err
	}

	// Every compute rank gets the cells it owns by id modulo size — a
	// fixture is a single file with no rank of its own, so this is the
	// simplest deterministic split across whatever size the run config
	// asks for.
	perRank := make([]attribute.Map, size)
	for i := range perRank {
		perRank[i] = make(attribute.Map)
	}
	for cell, vals := range raw {
		perRank[cell%uint32(size)][cell] = valuesFromFloats(kind, vals)
	}

	ex := collective.NewExchanger(session.Group)
	neg := attribute.NewNegotiators(session.IOGroup(ioSize))
	writePt := timer.Start("gather-and-write")
	err = session.Group.Go(ctx, func(ctx context.Context, rank int) error {
		return neuroh5.AppendCellAttributeMap(ctx, session, ex, neg, rank, size, ioSize, reg, attrPop, attrNamespace, attrName, kind, perRank[rank])
	})
	writePt.Stop()
	if err != nil {
		return err
	}

	logger.Info("appended attribute %s/%s/%s for %d cells across %d rank(s), io_size=%d", attrPop, attrNamespace, attrName, len(raw), size, ioSize)
	return nil
}

func runReadAttr(cmd *cobra.Command, args []string) error {
	timer := newPhaseTimer("read-attr")
	defer timer.PrintSummary()

	kind, err := elemtype.ParseKind(attrKindName)
	if err != nil {
		return err
	}

	openPt := timer.Start("open-session")
	session, err := wiring.OpenSession(cfg, 1)
	openPt.Stop()
	if err != nil {
		return err
	}
	defer session.Container.Close()

	ctx := context.Background()
	regPt := timer.Start("load-registry")
	reg, err := loadRegistry(ctx, session)
	regPt.Stop()
	if err != nil {
		return err
	}

	readPt := timer.Start("collective-read")
	m, err := neuroh5.ReadCellAttributes(ctx, session, 0, 1, reg, attrPop, attrNamespace, attrName, kind)
	readPt.Stop()
	if err != nil {
		return err
	}

	out := make(map[string][]float64, len(m))
	for cell, v := range m {
		out[fmt.Sprint(cell)] = floatsFromValues(v)
	}
	data, err := json.MarshalIndent(map[string]any{"values": out}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// valuesFromFloats builds a Values of kind from a fixture's float64
// vectors, the common numeric literal JSON already decodes every number
// into.
func valuesFromFloats(kind elemtype.Kind, vals []float64) elemtype.Values {
	v := elemtype.Values{Kind: kind}
	switch kind {
	case elemtype.KindUint8:
		for _, f := range vals {
			v.U8 = append(v.U8, uint8(f))
		}
	case elemtype.KindEnum8:
		for _, f := range vals {
			v.Enum8 = append(v.Enum8, uint8(f))
		}
	case elemtype.KindUint16:
		for _, f := range vals {
			v.U16 = append(v.U16, uint16(f))
		}
	case elemtype.KindUint32:
		for _, f := range vals {
			v.U32 = append(v.U32, uint32(f))
		}
	case elemtype.KindUint64:
		for _, f := range vals {
			v.U64 = append(v.U64, uint64(f))
		}
	case elemtype.KindInt8:
		for _, f := range vals {
			v.I8 = append(v.I8, int8(f))
		}
	case elemtype.KindInt16:
		for _, f := range vals {
			v.I16 = append(v.I16, int16(f))
		}
	case elemtype.KindInt32:
		for _, f := range vals {
			v.I32 = append(v.I32, int32(f))
		}
	case elemtype.KindInt64:
		for _, f := range vals {
			v.I64 = append(v.I64, int64(f))
		}
	case elemtype.KindFloat32:
		for _, f := range vals {
			v.F32 = append(v.F32, float32(f))
		}
	}
	return v
}

// floatsFromValues is valuesFromFloats's inverse, for printing any kind
// back out as plain JSON numbers.
func floatsFromValues(v elemtype.Values) []float64 {
	out := make([]float64, 0, v.Len())
	switch v.Kind {
	case elemtype.KindUint8:
		for _, x := range v.U8 {
			out = append(out, float64(x))
		}
	case elemtype.KindEnum8:
		for _, x := range v.Enum8 {
			out = append(out, float64(x))
		}
	case elemtype.KindUint16:
		for _, x := range v.U16 {
			out = append(out, float64(x))
		}
	case elemtype.KindUint32:
		for _, x := range v.U32 {
			out = append(out, float64(x))
		}
	case elemtype.KindUint64:
		for _, x := range v.U64 {
			out = append(out, float64(x))
		}
	case elemtype.KindInt8:
		for _, x := range v.I8 {
			out = append(out, float64(x))
		}
	case elemtype.KindInt16:
		for _, x := range v.I16 {
			out = append(out, float64(x))
		}
	case elemtype.KindInt32:
		for _, x := range v.I32 {
			out = append(out, float64(x))
		}
	case elemtype.KindInt64:
		for _, x := range v.I64 {
			out = append(out, float64(x))
		}
	case elemtype.KindFloat32:
		for _, x := range v.F32 {
			out = append(out, float64(x))
		}
	}
	return out
}
