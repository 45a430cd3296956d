// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

//go:build integration

package engine_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/engine"
	"github.com/permforge/permforge/internal/events"
	"github.com/permforge/permforge/internal/node"
	"github.com/permforge/permforge/internal/store"
)

var _ = Describe("Engine under concurrency", func() {
	var (
		ctx context.Context
		eng *engine.Engine
		bus *events.Bus
	)

	BeforeEach(func() {
		ctx = context.Background()
		bus = events.NewBus()
		eng = engine.New(store.NewMemoryStore(), engine.WithBus(bus))
		Expect(eng.Bootstrap(ctx)).To(Succeed())
	})

	Describe("permission checks racing mutations", func() {
		It("answers every check while nodes flip", func() {
			id := uuid.New()
			_, err := eng.LoadUser(ctx, id)
			Expect(err).NotTo(HaveOccurred())

			subject, err := eng.Subject(id)
			Expect(err).NotTo(HaveOccurred())

			var wg sync.WaitGroup
			stop := make(chan struct{})

			// Readers hammer the cache while the writer mutates.
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						select {
						case <-stop:
							return
						default:
							subject.HasPermission("fly", contexts.Of())
						}
					}
				}()
			}

			n := node.NewBuilder("fly").MustBuild()
			for range 50 {
				Expect(eng.SetUserNode(ctx, id, n)).To(Succeed())
				Expect(eng.UnsetUserNode(ctx, id, n)).To(Succeed())
			}
			close(stop)
			wg.Wait()

			Expect(subject.HasPermission("fly", contexts.Of())).To(BeFalse())
		})

		It("keeps group edits visible to every member", func() {
			memberIDs := make([]uuid.UUID, 10)
			for i := range memberIDs {
				memberIDs[i] = uuid.New()
				_, err := eng.LoadUser(ctx, memberIDs[i])
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(eng.SetGroupNode(ctx, "default", node.NewBuilder("chat.send").MustBuild())).To(Succeed())

			var wg sync.WaitGroup
			for _, id := range memberIDs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					subject, err := eng.Subject(id)
					Expect(err).NotTo(HaveOccurred())
					Expect(subject.HasPermission("chat.send", contexts.Of())).To(BeTrue())
				}()
			}
			wg.Wait()
		})
	})

	Describe("concurrent user loading", func() {
		It("gives every fresh user default membership", func() {
			const users = 32
			var wg sync.WaitGroup
			ids := make([]uuid.UUID, users)

			for i := range users {
				ids[i] = uuid.New()
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := eng.LoadUser(ctx, ids[i])
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			for _, id := range ids {
				subject, err := eng.Subject(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(subject.HasPermission("group.default", contexts.Of())).To(BeTrue())
			}
		})

		It("serves many distinct users mutating in parallel", func() {
			const users = 16
			var wg sync.WaitGroup

			for i := range users {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					id := uuid.New()
					_, err := eng.LoadUser(ctx, id)
					Expect(err).NotTo(HaveOccurred())

					key := fmt.Sprintf("perm.%d", i)
					Expect(eng.SetUserNode(ctx, id, node.NewBuilder(key).MustBuild())).To(Succeed())

					subject, err := eng.Subject(id)
					Expect(err).NotTo(HaveOccurred())
					Expect(subject.HasPermission(key, contexts.Of())).To(BeTrue())
				}()
			}
			wg.Wait()
		})
	})

	Describe("event delivery", func() {
		It("delivers every mutation event to a listening subscriber", func() {
			ch := bus.Subscribe(events.KindNodeAdded)
			defer bus.Unsubscribe(events.KindNodeAdded, ch)

			id := uuid.New()
			_, err := eng.LoadUser(ctx, id)
			Expect(err).NotTo(HaveOccurred())

			const mutations = 20
			for i := range mutations {
				key := fmt.Sprintf("perm.%d", i)
				Expect(eng.SetUserNode(ctx, id, node.NewBuilder(key).MustBuild())).To(Succeed())
			}

			seen := map[string]bool{}
			for range mutations {
				var ev events.Event
				Eventually(ch).Should(Receive(&ev))
				Expect(ev.Node).NotTo(BeNil())
				seen[ev.Node.Key()] = true
			}
			Expect(seen).To(HaveLen(mutations))
		})
	})

	Describe("promotion ladder", func() {
		BeforeEach(func() {
			_, err := eng.CreateGroup(ctx, "member")
			Expect(err).NotTo(HaveOccurred())
			_, err = eng.CreateGroup(ctx, "admin")
			Expect(err).NotTo(HaveOccurred())

			tr, err := eng.CreateTrack(ctx, "staff")
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.Append("default")).To(Succeed())
			Expect(tr.Append("member")).To(Succeed())
			Expect(tr.Append("admin")).To(Succeed())
			Expect(eng.SaveTrack(ctx, "staff", nil)).To(Succeed())
		})

		It("walks a user to the top while checks run", func() {
			id := uuid.New()
			_, err := eng.LoadUser(ctx, id)
			Expect(err).NotTo(HaveOccurred())

			subject, err := eng.Subject(id)
			Expect(err).NotTo(HaveOccurred())

			stop := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
						subject.HasPermission("group.admin", contexts.Of())
					}
				}
			}()

			_, err = eng.PromoteUser(ctx, id, "staff", contexts.Of())
			Expect(err).NotTo(HaveOccurred())
			_, err = eng.PromoteUser(ctx, id, "staff", contexts.Of())
			Expect(err).NotTo(HaveOccurred())

			close(stop)
			wg.Wait()

			Expect(subject.HasPermission("group.admin", contexts.Of())).To(BeTrue())
			Expect(subject.HasPermission("group.member", contexts.Of())).To(BeFalse())
		})
	})
})
