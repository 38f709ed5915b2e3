// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

//go:build integration

package scripting_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/hookhost/hookhost/internal/event"
	"github.com/hookhost/hookhost/internal/marshal"
)

const chatFilter = `
	hub.register{priority = 10, hooks = {
		OnParsedMsgChat = function(nick, msg)
			if msg:find("spam", 1, true) then return 0 end
		end,
	}}
`

const chatLogger = `
	seen = 0
	hub.register{priority = 50, hooks = {
		OnParsedMsgChat = function(nick, msg)
			seen = seen + 1
			hub.set_config("test", "seen", tostring(seen))
			hub.set_config("test", "last", msg)
		end,
	}}
`

var _ = Describe("Script host", func() {
	for _, mode := range []string{"shared", "isolated"} {
		Context("in "+mode+" mode", func() {
			var th *testHost
			ctx := context.Background()

			BeforeEach(func() {
				th = newTestHost(mode)
			})

			It("stops the chain at the first script that returns 0", func() {
				th.load("filter", chatFilter)
				th.load("logger", chatLogger)

				res, err := th.Fire(ctx, event.OnParsedMsgChat, marshal.Str("bob"), marshal.Str("buy spam"))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Stopped).To(BeTrue())
				Expect(res.Continue()).To(Equal(0))
				Expect(th.value("seen")).To(BeEmpty())

				res, err = th.Fire(ctx, event.OnParsedMsgChat, marshal.Str("bob"), marshal.Str("hello"))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Stopped).To(BeFalse())
				Expect(th.value("last")).To(Equal("hello"))

				chat := th.Dispatcher().Stats().Events[event.OnParsedMsgChat]
				Expect(chat.Dispatches).To(Equal(int64(2)))
				Expect(chat.Stops).To(Equal(int64(1)))
				Expect(th.admin("hookhost stats")).To(ContainElement("    OnParsedMsgChat: 3 calls (0 failed)"))
			})

			It("skips disabled scripts until they are enabled again", func() {
				id := th.load("filter", chatFilter)
				th.load("logger", chatLogger)

				Expect(th.admin("hookhost disable " + id.String())).To(Equal([]string{"Script ID " + id.String() + " disabled"}))
				res, err := th.Fire(ctx, event.OnParsedMsgChat, marshal.Str("bob"), marshal.Str("spam"))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Stopped).To(BeFalse())
				Expect(th.value("seen")).To(Equal("1"))

				Expect(th.admin("hookhost list")).To(ContainElement(ContainSubstring("[✗] ID=" + id.String() + ": filter")))

				th.admin("hookhost enable " + id.String())
				res, err = th.Fire(ctx, event.OnParsedMsgChat, marshal.Str("bob"), marshal.Str("spam"))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Stopped).To(BeTrue())
			})

			It("contains a failing handler and keeps dispatching", func() {
				th.load("faulty", `
					hub.register{priority = 1, hooks = {
						OnParsedMsgChat = function() error("broken") end,
					}}
				`)
				th.load("logger", chatLogger)

				res, err := th.Fire(ctx, event.OnParsedMsgChat, marshal.Str("bob"), marshal.Str("hi"))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Faults).To(Equal(1))
				Expect(th.value("seen")).To(Equal("1"))
				Expect(th.admin("hookhost stats")).To(ContainElement("    OnParsedMsgChat: 2 calls (1 failed)"))
			})

			It("runs timer callbacks on the next tick in the owner's context", func() {
				th.load("clock", `
					hub.after(0, function() hub.set_config("test", "owner", tostring(hub.script_id())) end)
					hub.register{hooks = {OnTimer = function() end}}
				`)
				Eventually(th.Contexts().Pending).WithTimeout(time.Second).Should(BeNumerically(">", 0))

				_, err := th.Tick(ctx, 100)
				Expect(err).NotTo(HaveOccurred())
				Expect(th.value("owner")).NotTo(BeEmpty())
			})

			It("discards timer work of scripts unloaded before the tick", func() {
				id := th.load("clock", `
					hub.after(0, function() hub.set_config("test", "fired", "yes") end)
					hub.register{hooks = {OnTimer = function() end}}
				`)
				Eventually(th.Contexts().Pending).WithTimeout(time.Second).Should(BeNumerically(">", 0))
				Expect(th.Unload(ctx, id)).To(Succeed())

				_, err := th.Tick(ctx, 100)
				Expect(err).NotTo(HaveOccurred())
				Expect(th.value("fired")).To(BeEmpty())
			})

			It("lets a script intercept hub commands before the admin interface", func() {
				th.load("guard", `
					hub.register{hooks = {
						OnHubCommand = function(nick, cmd) if cmd == "hookhost list" then return 0 end end,
					}}
				`)
				Expect(th.admin("hookhost list")).To(BeEmpty())
				Expect(th.admin("hookhost help")).NotTo(BeEmpty())
			})
		})
	}

	It("keeps script globals apart in isolated mode", func() {
		th := newTestHost("isolated")
		ctx := context.Background()
		th.load("a", `
			counter = "a"
			hub.register{hooks = {OnUserLogin = function() hub.set_config("test", "a", counter) end}}
		`)
		th.load("b", `
			hub.register{hooks = {OnUserLogin = function() hub.set_config("test", "b", tostring(counter)) end}}
		`)

		_, err := th.Fire(ctx, event.OnUserLogin, marshal.Str("x"))
		Expect(err).NotTo(HaveOccurred())
		Expect(th.value("a")).To(Equal("a"))
		Expect(th.value("b")).To(Equal("nil"))
	})
})
