package fattree

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/fattree/datarecording"
	"github.com/sarchlab/fattree/sim"
)

var _ = Describe("Statistics", func() {
	var (
		db       *sql.DB
		engine   *sim.SerialEngine
		network  *Network
		recorder datarecording.DataRecorder
	)

	BeforeEach(func() {
		var err error
		db, err = sql.Open("sqlite3", ":memory:")
		Expect(err).NotTo(HaveOccurred())
		db.SetMaxOpenConns(1)

		recorder = datarecording.NewWithDB(db)
		engine = sim.NewSerialEngine()
		network, err = MakeBuilder().
			WithEngine(engine).
			WithParams(twoLevelParams()).
			WithRecorder(recorder).
			Build()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		db.Close()
	})

	It("should record terminals and links when the simulation ends", func() {
		engine.ScheduleInitial(network.TerminalLP(0), 0,
			GenerateMsg{Packet: Packet{DstTerminal: 15, Size: 512}})
		Expect(engine.Run()).To(Succeed())

		engine.Finished()
		recorder.Flush()

		ctx := context.Background()
		reader := datarecording.NewReaderWithDB(db)

		terminals, err := datarecording.Select[TerminalStatsEntry](
			ctx, reader, TerminalStatsTable, datarecording.Selection{
				Where: "TerminalID = ?",
				Args:  []any{15},
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(terminals).To(HaveLen(1))

		entry := terminals[0]
		Expect(entry.SwitchID).To(Equal(3))
		Expect(entry.PacketsRecv).To(Equal(uint64(1)))
		Expect(entry.AvgHops).To(Equal(3.0))
		Expect(entry.AvgLatency).To(BeNumerically(">", 0))

		Expect(reader.Count(ctx, LinkTrafficTable, datarecording.Selection{})).
			To(Equal(6 * 8))

		links, busy, err := BusiestLinks(ctx, reader, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(busy).To(Equal(3))
		Expect(links).To(HaveLen(2))
		Expect(links[0].Traffic).To(Equal(uint64(512)))
		Expect(links[0].SwitchID).To(Equal(0))
		Expect(links[0].Port).To(Equal(4))

		levels, err := TrafficByLevel(ctx, reader)
		Expect(err).NotTo(HaveOccurred())
		Expect(levels).To(Equal([]LevelTraffic{
			{Level: 0, Links: 4 * 8, Traffic: 2 * 512},
			{Level: 1, Links: 2 * 8, Traffic: 512},
		}))

		summary, err := SummarizeTerminals(ctx, reader)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Terminals).To(Equal(16))
		Expect(summary.PacketsSent).To(Equal(uint64(1)))
		Expect(summary.PacketsRecv).To(Equal(uint64(1)))
		Expect(summary.AvgHops).To(Equal(3.0))
		Expect(summary.MaxLatency).To(Equal(entry.MaxLatency))
	})

	It("should summarize an empty recording", func() {
		engine.Finished()
		recorder.Flush()

		summary, err := SummarizeTerminals(context.Background(),
			datarecording.NewReaderWithDB(db))

		Expect(err).NotTo(HaveOccurred())
		Expect(summary.PacketsRecv).To(BeZero())
		Expect(summary.AvgLatency).To(BeZero())
	})
})
