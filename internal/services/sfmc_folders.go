package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

// FolderKind selects the folder tree: Content Builder categories or data extension folders.
type FolderKind string

const (
	FolderAsset FolderKind = "asset"
	FolderData  FolderKind = "data"
)

// folderDepth is how many levels below a parent are listed when looking for an existing folder.
const folderDepth = 2

// GetOrCreateFolder returns the folder called name directly under parentID, creating it when absent.
//
// A zero parentID means the root of the tree. Matching is exact and case-sensitive. The lookup is not
// transactional, so concurrent callers may both create the folder.
func (s *SFMCService) GetOrCreateFolder(ctx context.Context, kind FolderKind, name string, parentID int64) (*models.Folder, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: folder name", shared.ErrMissingArgument)
	}
	if parentID == 0 {
		root, err := s.rootFolder(ctx, kind)
		if err != nil {
			return nil, err
		}
		parentID = root.ID
	}

	existing, err := s.listTree(ctx, kind, parentID, folderDepth)
	if err != nil {
		return nil, err
	}
	for _, f := range existing {
		if f.ParentID == parentID && f.Name == name {
			s.logger.Debug("folder exists", "kind", kind, "name", name, "id", f.ID)
			return &f, nil
		}
	}

	created, err := s.createFolder(ctx, kind, name, parentID)
	if err != nil {
		return nil, &shared.WriteError{Entity: string(kind) + " folder", Name: name, Attempts: 1, Err: err}
	}
	s.logger.Info("folder created", "kind", kind, "name", name, "id", created.ID, "parent", parentID)
	return created, nil
}

// ListFolders returns the folders up to two levels below parentID (the root when zero), parent first.
func (s *SFMCService) ListFolders(ctx context.Context, kind FolderKind, parentID int64) ([]models.Folder, error) {
	var out []models.Folder
	if parentID == 0 {
		root, err := s.rootFolder(ctx, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, *root)
		parentID = root.ID
	}

	tree, err := s.listTree(ctx, kind, parentID, folderDepth)
	if err != nil {
		return nil, err
	}
	return append(out, tree...), nil
}

func (s *SFMCService) listTree(ctx context.Context, kind FolderKind, parentID int64, depth int) ([]models.Folder, error) {
	if depth == 0 {
		return nil, nil
	}

	children, err := s.listChildren(ctx, kind, parentID)
	if err != nil {
		return nil, err
	}

	out := append([]models.Folder(nil), children...)
	for _, c := range children {
		grand, err := s.listTree(ctx, kind, c.ID, depth-1)
		if err != nil {
			return nil, err
		}
		out = append(out, grand...)
	}
	return out, nil
}

func (s *SFMCService) rootFolder(ctx context.Context, kind FolderKind) (*models.Folder, error) {
	roots, err := s.listChildren(ctx, kind, 0)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no root %s folder", shared.ErrNotFound, kind)
	}
	return &roots[0], nil
}

func (s *SFMCService) listChildren(ctx context.Context, kind FolderKind, parentID int64) ([]models.Folder, error) {
	switch kind {
	case FolderAsset:
		return s.listCategories(ctx, parentID)
	case FolderData:
		return s.listDataFolders(ctx, parentID)
	default:
		return nil, fmt.Errorf("%w: folder kind %q", shared.ErrInvalidArgument, kind)
	}
}

func (s *SFMCService) createFolder(ctx context.Context, kind FolderKind, name string, parentID int64) (*models.Folder, error) {
	switch kind {
	case FolderAsset:
		return s.createCategory(ctx, name, parentID)
	case FolderData:
		return s.createDataFolder(ctx, name, parentID)
	default:
		return nil, fmt.Errorf("%w: folder kind %q", shared.ErrInvalidArgument, kind)
	}
}

type categoryList struct {
	Items []struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		ParentID     int64  `json:"parentId"`
		CategoryType string `json:"categoryType"`
	} `json:"items"`
}

func (s *SFMCService) listCategories(ctx context.Context, parentID int64) ([]models.Folder, error) {
	q := url.Values{}
	q.Set("$pagesize", "500")
	q.Set("$filter", fmt.Sprintf("parentId eq %d", parentID))

	resp, err := s.rest.Expect(s.rest.Get(ctx, "/asset/v1/content/categories?"+q.Encode()))
	if err != nil {
		return nil, err
	}

	var list categoryList
	if err := resp.Decode(&list); err != nil {
		return nil, err
	}

	folders := make([]models.Folder, 0, len(list.Items))
	for _, it := range list.Items {
		if it.ParentID != parentID {
			continue
		}
		folders = append(folders, models.Folder{ID: it.ID, Name: it.Name, ParentID: it.ParentID, Type: it.CategoryType})
	}
	return folders, nil
}

func (s *SFMCService) createCategory(ctx context.Context, name string, parentID int64) (*models.Folder, error) {
	resp, err := s.rest.Expect(s.rest.PostJSON(ctx, "/asset/v1/content/categories", map[string]any{
		"name":     name,
		"parentId": parentID,
	}))
	if err != nil {
		return nil, err
	}

	id, ok := parseID(resp.Object()["id"])
	if !ok {
		return nil, fmt.Errorf("%w: category response without id", shared.ErrWrite)
	}
	return &models.Folder{ID: id, Name: name, ParentID: parentID, Type: "asset"}, nil
}

const dataFolderRetrieve = `<RetrieveRequestMsg xmlns="http://exacttarget.com/wsdl/partnerAPI"><RetrieveRequest>` +
	`<ObjectType>DataFolder</ObjectType>` +
	`<Properties>ID</Properties><Properties>Name</Properties><Properties>CustomerKey</Properties>` +
	`<Properties>ParentFolder.ID</Properties><Properties>ContentType</Properties>` +
	`<Filter xsi:type="ComplexFilterPart">` +
	`<LeftOperand xsi:type="SimpleFilterPart"><Property>ParentFolder.ID</Property><SimpleOperator>equals</SimpleOperator><Value>%d</Value></LeftOperand>` +
	`<LogicalOperator>AND</LogicalOperator>` +
	`<RightOperand xsi:type="SimpleFilterPart"><Property>ContentType</Property><SimpleOperator>equals</SimpleOperator><Value>dataextension</Value></RightOperand>` +
	`</Filter></RetrieveRequest></RetrieveRequestMsg>`

func (s *SFMCService) listDataFolders(ctx context.Context, parentID int64) ([]models.Folder, error) {
	out, err := s.soapCall(ctx, "Retrieve", fmt.Sprintf(dataFolderRetrieve, parentID))
	if err != nil {
		return nil, err
	}

	folders := make([]models.Folder, 0, len(out.Body.Retrieve.Results))
	for _, r := range out.Body.Retrieve.Results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		parent, _ := strconv.ParseInt(r.ParentFolder.ID, 10, 64)
		folders = append(folders, models.Folder{ID: id, Name: r.Name, ParentID: parent, Type: r.ContentType})
	}
	return folders, nil
}

func (s *SFMCService) createDataFolder(ctx context.Context, name string, parentID int64) (*models.Folder, error) {
	inner := fmt.Sprintf(`<ParentFolder><ID>%d</ID><IDSpecified>true</IDSpecified></ParentFolder>`, parentID) +
		xmlElem("Name", name) +
		xmlElem("CustomerKey", shared.CustomerKey(name, s.now())) +
		xmlElem("Description", "Migrated from HubSpot") +
		`<ContentType>dataextension</ContentType><IsActive>true</IsActive><IsEditable>true</IsEditable><AllowChildren>true</AllowChildren>`

	res, err := s.soapCreate(ctx, "DataFolder", inner)
	if err != nil {
		return nil, err
	}
	id, ok := parseID(res.NewID)
	if !ok {
		return nil, fmt.Errorf("%w: data folder create returned no id: %s", shared.ErrWrite, res.StatusMessage)
	}
	return &models.Folder{ID: id, Name: name, ParentID: parentID, Type: "dataextension"}, nil
}
