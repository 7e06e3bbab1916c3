package service

import (
	"context"
	"fmt"
	"sort"

	"taskbot/internal/model"
	"taskbot/internal/repository"
)

// MemberLoad is one member of a tag pool and their current pending
// workload, the sum of effort estimates over pending tasks.
type MemberLoad struct {
	User   model.User
	Weight float64
}

// WorkloadResolver orders a tag pool by current workload so new tasks
// land on the least-loaded member. The snapshot is advisory: two
// concurrent resolutions may pick the same member, which is accepted.
type WorkloadResolver struct {
	userRepo *repository.UserRepository
	taskRepo *repository.TaskRepository
}

func NewWorkloadResolver(userRepo *repository.UserRepository, taskRepo *repository.TaskRepository) *WorkloadResolver {
	return &WorkloadResolver{userRepo: userRepo, taskRepo: taskRepo}
}

// ResolveWorkload returns the tag's members ascending by weight, ties
// broken by chat id so unchanged state always yields the same order.
func (w *WorkloadResolver) ResolveWorkload(ctx context.Context, tag string) ([]MemberLoad, error) {
	members, err := w.userRepo.FindMembersByTag(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("members of tag %q: %w", tag, err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("tag %q: %w", tag, ErrEmptyTag)
	}

	pending, err := w.taskRepo.FindAllPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending tasks: %w", err)
	}

	loads := make([]MemberLoad, 0, len(members))
	for _, member := range members {
		var weight float64
		for i := range pending {
			t := &pending[i]
			// A task may be indexed by either identity form.
			if (t.AssigneeUserID != 0 && t.AssigneeUserID == member.ID) ||
				(t.AssigneeChatID != 0 && t.AssigneeChatID == member.ChatID) {
				weight += t.Weight()
			}
		}
		loads = append(loads, MemberLoad{User: member, Weight: weight})
	}

	sort.SliceStable(loads, func(i, j int) bool {
		if loads[i].Weight != loads[j].Weight {
			return loads[i].Weight < loads[j].Weight
		}
		return loads[i].User.ChatID < loads[j].User.ChatID
	})

	return loads, nil
}

// PickAssignee returns the least-loaded member of the tag pool.
func (w *WorkloadResolver) PickAssignee(ctx context.Context, tag string) (*model.User, error) {
	loads, err := w.ResolveWorkload(ctx, tag)
	if err != nil {
		return nil, err
	}
	return &loads[0].User, nil
}
