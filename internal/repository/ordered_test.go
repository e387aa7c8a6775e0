package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/trade-erp-api/internal/database"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/ordering"
	"gorm.io/gorm"
)

type OrderedRepositoryTestSuite struct {
	suite.Suite
	ctx   context.Context
	db    *gorm.DB
	tasks TaskRepository
	lists TaskListRepository
	team  *models.Team
	user  *models.User
}

func (s *OrderedRepositoryTestSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.db, err = database.OpenMemory()
	s.Require().NoError(err)

	s.tasks = NewTaskRepository(s.db)
	s.lists = NewTaskListRepository(s.db)

	s.user = &models.User{Username: "owner", PasswordHash: "hash"}
	s.Require().NoError(s.db.Create(s.user).Error)
	s.team = &models.Team{Name: "Export desk", InviteCode: "CODE-1"}
	s.Require().NoError(s.db.Create(s.team).Error)
}

func (s *OrderedRepositoryTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	s.Require().NoError(err)
	sqlDB.Close()
}

func (s *OrderedRepositoryTestSuite) createList(title string) *models.TaskList {
	list := &models.TaskList{TeamID: s.team.ID, Title: title}
	s.Require().NoError(s.lists.Create(s.ctx, list))
	return list
}

func (s *OrderedRepositoryTestSuite) createTasks(listID uint64, n int) []*models.Task {
	out := make([]*models.Task, n)
	for i := range out {
		out[i] = &models.Task{TaskListID: listID, Title: fmt.Sprintf("task %d", i+1), CreatorID: s.user.ID}
		s.Require().NoError(s.tasks.Create(s.ctx, out[i]))
	}
	return out
}

// titles returns the task titles of a list in order and checks density.
func (s *OrderedRepositoryTestSuite) titles(listID uint64) []string {
	tasks, err := s.tasks.ListByTaskList(s.ctx, listID)
	s.Require().NoError(err)

	titles := make([]string, len(tasks))
	orders := make([]int, len(tasks))
	for i, t := range tasks {
		titles[i] = t.Title
		orders[i] = t.Order
	}
	s.Require().NoError(ordering.CheckDense(orders))
	return titles
}

func (s *OrderedRepositoryTestSuite) TestCreate_AppendsAtEnd() {
	list := s.createList("Inbox")
	tasks := s.createTasks(list.ID, 3)

	s.Equal(1, tasks[0].Order)
	s.Equal(3, tasks[2].Order)
	s.Equal([]string{"task 1", "task 2", "task 3"}, s.titles(list.ID))
}

func (s *OrderedRepositoryTestSuite) TestCreate_UnknownList() {
	err := s.tasks.Create(s.ctx, &models.Task{TaskListID: 999, Title: "orphan", CreatorID: s.user.ID})
	s.ErrorIs(err, ErrNotFound)
}

func (s *OrderedRepositoryTestSuite) TestMove_Forward() {
	list := s.createList("Inbox")
	tasks := s.createTasks(list.ID, 5)

	plan, err := s.tasks.Move(s.ctx, tasks[1].ID, 4, nil)
	s.Require().NoError(err)
	s.Equal(4, plan.ToOrder)

	s.Equal([]string{"task 1", "task 3", "task 4", "task 2", "task 5"}, s.titles(list.ID))
}

func (s *OrderedRepositoryTestSuite) TestMove_Backward() {
	list := s.createList("Inbox")
	tasks := s.createTasks(list.ID, 5)

	_, err := s.tasks.Move(s.ctx, tasks[4].ID, 2, nil)
	s.Require().NoError(err)

	s.Equal([]string{"task 1", "task 5", "task 2", "task 3", "task 4"}, s.titles(list.ID))
}

func (s *OrderedRepositoryTestSuite) TestMove_SamePositionIsNoOp() {
	list := s.createList("Inbox")
	tasks := s.createTasks(list.ID, 4)

	plan, err := s.tasks.Move(s.ctx, tasks[2].ID, 3, nil)
	s.Require().NoError(err)
	s.True(plan.NoOp)
	s.Equal([]string{"task 1", "task 2", "task 3", "task 4"}, s.titles(list.ID))
}

func (s *OrderedRepositoryTestSuite) TestMove_TargetClamped() {
	list := s.createList("Inbox")
	tasks := s.createTasks(list.ID, 3)

	_, err := s.tasks.Move(s.ctx, tasks[0].ID, 99, nil)
	s.Require().NoError(err)
	s.Equal([]string{"task 2", "task 3", "task 1"}, s.titles(list.ID))
}

func (s *OrderedRepositoryTestSuite) TestMove_CrossList() {
	from := s.createList("Inbox")
	to := s.createList("Doing")
	src := s.createTasks(from.ID, 4)
	dst := []*models.Task{
		{TaskListID: to.ID, Title: "b1", CreatorID: s.user.ID},
		{TaskListID: to.ID, Title: "b2", CreatorID: s.user.ID},
	}
	for _, t := range dst {
		s.Require().NoError(s.tasks.Create(s.ctx, t))
	}

	plan, err := s.tasks.Move(s.ctx, src[1].ID, 2, &to.ID)
	s.Require().NoError(err)
	s.Equal([]uint64{from.ID, to.ID}, plan.Containers())

	s.Equal([]string{"task 1", "task 3", "task 4"}, s.titles(from.ID))
	s.Equal([]string{"b1", "task 2", "b2"}, s.titles(to.ID))

	moved, err := s.tasks.FindByID(s.ctx, src[1].ID)
	s.Require().NoError(err)
	s.Equal(to.ID, moved.TaskListID)
	s.Equal(2, moved.Order)
}

func (s *OrderedRepositoryTestSuite) TestMove_CrossListAppendToEmpty() {
	from := s.createList("Inbox")
	to := s.createList("Done")
	src := s.createTasks(from.ID, 2)

	_, err := s.tasks.Move(s.ctx, src[0].ID, 10, &to.ID)
	s.Require().NoError(err)

	s.Equal([]string{"task 2"}, s.titles(from.ID))
	s.Equal([]string{"task 1"}, s.titles(to.ID))
}

func (s *OrderedRepositoryTestSuite) TestMove_UnknownDestination() {
	list := s.createList("Inbox")
	tasks := s.createTasks(list.ID, 2)
	missing := uint64(404)

	_, err := s.tasks.Move(s.ctx, tasks[0].ID, 1, &missing)
	s.ErrorIs(err, ErrNotFound)
	s.Equal([]string{"task 1", "task 2"}, s.titles(list.ID))
}

func (s *OrderedRepositoryTestSuite) TestDelete_Compacts() {
	list := s.createList("Inbox")
	tasks := s.createTasks(list.ID, 5)

	deleted, err := s.tasks.Delete(s.ctx, tasks[1].ID)
	s.Require().NoError(err)
	s.Equal(2, deleted.Order)

	s.Equal([]string{"task 1", "task 3", "task 4", "task 5"}, s.titles(list.ID))

	var row models.Task
	s.Require().NoError(s.db.Unscoped().First(&row, tasks[1].ID).Error)
	s.Equal(-1, row.Order)
	s.True(row.DeletedAt.Valid)
}

func (s *OrderedRepositoryTestSuite) TestDeletedItemIsNotFound() {
	list := s.createList("Inbox")
	tasks := s.createTasks(list.ID, 2)

	_, err := s.tasks.Delete(s.ctx, tasks[0].ID)
	s.Require().NoError(err)

	_, err = s.tasks.Move(s.ctx, tasks[0].ID, 1, nil)
	s.ErrorIs(err, ErrNotFound)
	_, err = s.tasks.Delete(s.ctx, tasks[0].ID)
	s.ErrorIs(err, ErrNotFound)
}

func (s *OrderedRepositoryTestSuite) TestTaskList_MoveAndDelete() {
	a := s.createList("A")
	b := s.createList("B")
	c := s.createList("C")
	s.createTasks(b.ID, 2)

	_, err := s.lists.Move(s.ctx, c.ID, 1)
	s.Require().NoError(err)

	lists, err := s.lists.ListByTeam(s.ctx, s.team.ID)
	s.Require().NoError(err)
	s.Equal([]uint64{c.ID, a.ID, b.ID}, []uint64{lists[0].ID, lists[1].ID, lists[2].ID})

	_, err = s.lists.Delete(s.ctx, a.ID)
	s.Require().NoError(err)
	_, err = s.lists.Delete(s.ctx, b.ID)
	s.Require().NoError(err)

	lists, err = s.lists.ListByTeam(s.ctx, s.team.ID)
	s.Require().NoError(err)
	s.Require().Len(lists, 1)
	s.Equal(c.ID, lists[0].ID)
	s.Equal(1, lists[0].Order)

	s.Empty(s.titles(b.ID))
}

// Two racing moves on one list both finish or report a conflict; the list
// stays dense either way.
func (s *OrderedRepositoryTestSuite) TestConcurrentMoves_KeepDensity() {
	list := s.createList("Inbox")
	tasks := s.createTasks(list.ID, 6)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	moves := []struct {
		id     uint64
		target int
	}{
		{tasks[0].ID, 5},
		{tasks[5].ID, 1},
	}
	for i, m := range moves {
		wg.Add(1)
		go func(i int, id uint64, target int) {
			defer wg.Done()
			_, errs[i] = s.tasks.Move(s.ctx, id, target, nil)
		}(i, m.id, m.target)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			s.True(errors.Is(err, ErrConflict), "unexpected error: %v", err)
		}
	}
	s.Len(s.titles(list.ID), 6)
}

func TestOrderedRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(OrderedRepositoryTestSuite))
}
